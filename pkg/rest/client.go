// Package rest is the client for the DevKnot HTTP surface: history,
// attachment upload, and the conversation list. Failures surface as
// errors, never retries; the user re-triggers by reopening the view.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/model"
)

type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zap.Logger
}

func New(baseURL, token string, log *zap.Logger) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   log,
	}
}

// sender is the history record's fromUserId field, which the server sends
// either as a plain id or as a populated object.
type sender struct {
	ID        string
	FirstName string
	PhotoURL  string
}

func (s *sender) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		s.ID = id
		return nil
	}
	var obj struct {
		ID        string `json:"_id"`
		FirstName string `json:"firstName"`
		PhotoURL  string `json:"photoUrl"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.ID = obj.ID
	s.FirstName = obj.FirstName
	s.PhotoURL = obj.PhotoURL
	return nil
}

type historyRecord struct {
	ID          string            `json:"_id"`
	From        sender            `json:"fromUserId"`
	Text        string            `json:"text"`
	CreatedAt   string            `json:"createdAt"`
	Status      string            `json:"status"`
	IsDeleted   bool              `json:"isDeleted"`
	MessageType model.MessageType `json:"messageType"`
	FileURL     string            `json:"fileUrl"`
	FileName    string            `json:"fileName"`
	MimeType    string            `json:"mimeType"`
	FileSize    int64             `json:"fileSize"`
}

type historyEnvelope struct {
	Data []historyRecord `json:"data"`
}

// History fetches the durable message log for the (selfID, peerID) pair and
// normalizes it into the common message shape. Ordering is whatever the
// server returns; the loader does not re-sort.
func (c *Client) History(ctx context.Context, selfID, peerID string) ([]model.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/chat/history/"+peerID, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history returned %s", resp.Status)
	}

	var env historyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}

	key := model.ConversationKey(selfID, peerID)
	msgs := make([]model.Message, 0, len(env.Data))
	for _, rec := range env.Data {
		if rec.ID == "" {
			c.log.Warn("skipping history record without id")
			continue
		}
		msgs = append(msgs, c.normalize(rec, key))
	}
	return msgs, nil
}

func (c *Client) normalize(rec historyRecord, key string) model.Message {
	m := model.Message{
		ID:           rec.ID,
		Conversation: key,
		SenderID:     rec.From.ID,
		SenderName:   rec.From.FirstName,
		SenderPhoto:  rec.From.PhotoURL,
		Body:         rec.Text,
		Type:         rec.MessageType,
		Status:       model.MessageStatus(rec.Status),
	}
	if m.Type == "" {
		m.Type = model.TypeText
	}
	if m.Status.Rank() < 0 {
		m.Status = model.StatusSent
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.CreatedAt); err == nil {
		m.CreatedAt = ts
	}
	if m.Type != model.TypeText && rec.FileURL != "" {
		m.Attachment = &model.Attachment{
			URL:      c.ResolveURL(rec.FileURL),
			FileName: rec.FileName,
			MimeType: rec.MimeType,
			ByteSize: rec.FileSize,
		}
	}
	if rec.IsDeleted {
		m.MarkDeleted()
	}
	return m
}

// Uploaded is the server's description of a stored attachment.
type Uploaded struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// Upload posts file bytes as a single multipart request. On failure no
// message is sent; the attempt is simply abandoned.
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (*Uploaded, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload returned %s", resp.Status)
	}

	var up Uploaded
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return nil, err
	}
	up.FileURL = c.ResolveURL(up.FileURL)
	return &up, nil
}

// Conversation is one row of the user's conversation list.
type Conversation struct {
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	LastUpdated time.Time `json:"last_updated"`
	UnreadCount int64     `json:"unread_count"`
}

// Conversations lists the user's existing 1:1 conversations for the sidebar.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/conversations", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversations returned %s", resp.Status)
	}

	var list []Conversation
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// ResolveURL turns a server-relative attachment path into an absolute URL.
// Absolute URLs pass through unchanged.
func (c *Client) ResolveURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return c.base + "/" + strings.TrimLeft(raw, "/")
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
