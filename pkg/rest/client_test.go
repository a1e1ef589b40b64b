package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/model"
)

func TestHistoryNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/history/peer1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"_id":"m1","fromUserId":{"_id":"peer1","firstName":"Ada","photoUrl":"/media/ada.png"},
			 "text":"hello","createdAt":"2026-08-29T10:00:00Z","status":"seen"},
			{"_id":"m2","fromUserId":"self1","text":"hi back","createdAt":"2026-08-29T10:01:00Z"},
			{"_id":"m3","fromUserId":"peer1","text":"","messageType":"image",
			 "fileUrl":"/uploads/pic.png","fileName":"pic.png","mimeType":"image/png","fileSize":2048},
			{"_id":"m4","fromUserId":"peer1","text":"gone","isDeleted":true},
			{"fromUserId":"peer1","text":"no id, dropped"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	msgs, err := c.History(context.Background(), "self1", "peer1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	// Populated sender object.
	assert.Equal(t, "peer1", msgs[0].SenderID)
	assert.Equal(t, "Ada", msgs[0].SenderName)
	assert.Equal(t, model.StatusSeen, msgs[0].Status)
	assert.Equal(t, model.ConversationKey("self1", "peer1"), msgs[0].Conversation)

	// Plain id sender, defaults applied.
	assert.Equal(t, "self1", msgs[1].SenderID)
	assert.Equal(t, model.TypeText, msgs[1].Type)
	assert.Equal(t, model.StatusSent, msgs[1].Status)

	// Attachment with relative URL resolved against the API origin.
	require.NotNil(t, msgs[2].Attachment)
	assert.Equal(t, srv.URL+"/uploads/pic.png", msgs[2].Attachment.URL)
	assert.Equal(t, int64(2048), msgs[2].Attachment.ByteSize)

	// Deleted record arrives tombstoned.
	assert.True(t, msgs[3].Deleted)
	assert.Equal(t, model.DeletedPlaceholder, msgs[3].Body)
	assert.Nil(t, msgs[3].Attachment)
}

func TestHistoryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	_, err := c.History(context.Background(), "self1", "peer1")
	assert.Error(t, err)
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "notes.txt", hdr.Filename)

		json.NewEncoder(w).Encode(Uploaded{
			FileURL:  "/uploads/notes.txt",
			FileName: "notes.txt",
			MimeType: "text/plain",
			FileSize: 5,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	up, err := c.Upload(context.Background(), "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/uploads/notes.txt", up.FileURL)
	assert.Equal(t, "text/plain", up.MimeType)
}

func TestUploadPreservesBinaryPayload(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0xff}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		got, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		json.NewEncoder(w).Encode(Uploaded{
			FileURL:  "/uploads/blob.png",
			FileName: "blob.png",
			MimeType: "image/png",
			FileSize: int64(len(payload)),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	up, err := c.Upload(context.Background(), "blob.png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), up.FileSize)
}

func TestUploadFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	_, err := c.Upload(context.Background(), "big.bin", strings.NewReader("xxxx"))
	assert.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	c := New("http://api.local/", "", zap.NewNop())

	assert.Equal(t, "https://cdn.example.com/a.png", c.ResolveURL("https://cdn.example.com/a.png"))
	assert.Equal(t, "http://api.local/uploads/a.png", c.ResolveURL("/uploads/a.png"))
	assert.Equal(t, "http://api.local/uploads/a.png", c.ResolveURL("uploads/a.png"))
	assert.Empty(t, c.ResolveURL(""))
}

func TestConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations", r.URL.Path)
		w.Write([]byte(`[
			{"user_id":"self1","other_user_id":"peer1","last_updated":"2026-08-29T09:00:00Z","unread_count":2},
			{"user_id":"self1","other_user_id":"peer2","last_updated":"2026-08-28T09:00:00Z","unread_count":0}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", zap.NewNop())
	list, err := c.Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "peer1", list[0].OtherUserID)
	assert.Equal(t, int64(2), list[0].UnreadCount)
}
