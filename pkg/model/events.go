package model

// Socket event names. The client and server agree on these strings; the
// payload for each is defined below.
const (
	// outbound
	EventRegisterUser     = "registerUser"
	EventGetOnlineUsers   = "getOnlineUsers"
	EventJoinChat         = "joinChat"
	EventCheckUserOnline  = "checkUserOnline"
	EventSendMessage      = "sendMessage"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventMessageDelivered = "messageDelivered"
	EventMessageSeen      = "messageSeen"
	EventDeleteMessage    = "deleteMessage"
	EventManualDisconnect = "manualDisconnect"

	// inbound
	EventOnlineUsersSnapshot  = "onlineUsersSnapshot"
	EventUserOnlineStatus     = "userOnlineStatus"
	EventMessageReceived      = "messageReceived"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventMessageDeleted       = "messageDeleted"
	EventMessageNotification  = "messageNotification"
)

type RegisterUserPayload struct {
	UserID string `json:"userId"`
}

type JoinChatPayload struct {
	FirstName    string `json:"firstName"`
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
}

type CheckUserOnlinePayload struct {
	TargetUserID string `json:"targetUserId"`
}

type SendMessagePayload struct {
	FirstName    string      `json:"firstName"`
	UserID       string      `json:"userId"`
	TargetUserID string      `json:"targetUserId"`
	Text         string      `json:"text"`
	MessageType  MessageType `json:"messageType"`
	FileURL      string      `json:"fileUrl,omitempty"`
	FileName     string      `json:"fileName,omitempty"`
	MimeType     string      `json:"mimeType,omitempty"`
	FileSize     int64       `json:"fileSize,omitempty"`
}

type TypingPayload struct {
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

type MessageRefPayload struct {
	MessageID string `json:"messageId"`
}

type OnlineUsersSnapshotPayload struct {
	Users []string `json:"users"`
}

type UserOnlineStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
	LastSeen string `json:"lastSeen,omitempty"`
}

type MessageReceivedPayload struct {
	ID          string      `json:"_id"`
	FirstName   string      `json:"firstName"`
	UserID      string      `json:"userId"`
	Text        string      `json:"text"`
	CreatedAt   string      `json:"createdAt"`
	Status      string      `json:"status"`
	MessageType MessageType `json:"messageType"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
	MimeType    string      `json:"mimeType,omitempty"`
	FileSize    int64       `json:"fileSize,omitempty"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
}

type MessageStatusUpdatedPayload struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

type MessageNotificationPayload struct {
	FromUserID string `json:"fromUserId"`
}
