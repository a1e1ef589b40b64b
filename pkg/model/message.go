package model

import "time"

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// Rank orders statuses for monotonic transition checks.
// Unknown statuses rank below "sent" so they can never overwrite anything.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	default:
		return -1
	}
}

// DeletedPlaceholder is the tombstone body shown in place of a deleted message.
const DeletedPlaceholder = "This message was deleted"

type Attachment struct {
	URL      string `json:"fileUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	ByteSize int64  `json:"fileSize"`
}

// Message is one chat message between exactly two participants.
// IDs are server-assigned; the client never invents optimistic ids.
type Message struct {
	ID           string
	Conversation string
	SenderID     string
	SenderName   string
	SenderPhoto  string
	Body         string
	Type         MessageType
	Attachment   *Attachment
	CreatedAt    time.Time
	Status       MessageStatus
	Deleted      bool
}

// Self reports whether the message was authored by the given user.
func (m *Message) Self(userID string) bool {
	return m.SenderID == userID
}

// MarkDeleted turns the message into a tombstone. Deletion is irreversible
// and idempotent: the body is replaced, the attachment cleared, and the
// kind downgraded to text.
func (m *Message) MarkDeleted() {
	m.Deleted = true
	m.Body = DeletedPlaceholder
	m.Attachment = nil
	m.Type = TypeText
}

// ConversationKey derives the routing key for a 1:1 chat from the unordered
// user id pair. Both participants compute the same key regardless of order.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
