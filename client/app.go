package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/auth"
	"github.com/devknot/devknot-cli/pkg/config"
	"github.com/devknot/devknot-cli/pkg/model"
	"github.com/devknot/devknot-cli/pkg/presence"
	"github.com/devknot/devknot-cli/pkg/rest"
	"github.com/devknot/devknot-cli/pkg/timeline"
	"github.com/devknot/devknot-cli/pkg/transport"
	"github.com/devknot/devknot-cli/pkg/unread"
)

type pane int

const (
	paneSidebar pane = iota
	paneChat
)

// stateChanged tells the UI loop that shared state (timeline, presence,
// unread counts) moved underneath it and the view should re-render.
type stateChanged struct{}

type conversationsLoaded struct {
	list []rest.Conversation
	err  error
}

type attachmentSent struct{ err error }

type app struct {
	cfg     *config.Config
	log     *zap.Logger
	sess    *auth.Session
	api     *rest.Client
	conns   *transport.Connector
	tracker *presence.Tracker
	ledger  *unread.Ledger

	width  int
	height int

	conn  *transport.Conn
	watch *transport.Group

	focused  pane
	convs    []rest.Conversation
	selected int
	status   string

	peerID string
	tl     *timeline.Timeline
	input  textinput.Model
	chat   viewport.Model
}

func newApp(cfg *config.Config, log *zap.Logger, sess *auth.Session, api *rest.Client,
	conns *transport.Connector, tracker *presence.Tracker, ledger *unread.Ledger) *app {

	input := textinput.New()
	input.Placeholder = "Say hi, share a repo, or pitch an idea..."
	input.CharLimit = 1000

	a := &app{
		cfg:     cfg,
		log:     log,
		sess:    sess,
		api:     api,
		conns:   conns,
		tracker: tracker,
		ledger:  ledger,
		input:   input,
		chat:    viewport.New(80, 20),
	}
	if _, err := a.getConn(); err != nil {
		a.log.Warn("socket unavailable at startup", zap.Error(err))
	}
	return a
}

func notifyUI() {
	if program != nil {
		program.Send(stateChanged{})
	}
}

// getConn returns the shared connection, redialing through the connector if
// the previous one died. On a fresh connection the presence tracker and
// unread ledger are re-registered and the app's redraw listeners rebound;
// both rebinds tear down their old subscriptions first.
func (a *app) getConn() (*transport.Conn, error) {
	conn, err := a.conns.Get()
	if err != nil {
		return nil, err
	}
	if conn == a.conn {
		return conn, nil
	}

	a.conn = conn
	if err := a.tracker.OnAuthenticated(conn, a.sess.UserID); err != nil {
		a.log.Warn("presence re-registration failed", zap.Error(err))
	}
	a.ledger.Bind(conn, a.sess.UserID)

	if a.watch != nil {
		a.watch.Close()
	}
	a.watch = &transport.Group{}
	a.watch.On(conn, model.EventUserOnlineStatus, func(json.RawMessage) { notifyUI() })
	a.watch.On(conn, model.EventOnlineUsersSnapshot, func(json.RawMessage) { notifyUI() })
	a.watch.On(conn, model.EventMessageNotification, func(json.RawMessage) { notifyUI() })
	return conn, nil
}

func (a *app) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.loadConversations())
}

func (a *app) loadConversations() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		list, err := a.api.Conversations(ctx)
		return conversationsLoaded{list: list, err: err}
	}
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.chat = viewport.New(max(20, a.width-sidebarWidth-6), max(5, a.height-8))
		a.input.Width = max(20, a.width-sidebarWidth-10)
		a.renderChat()
		return a, nil

	case stateChanged:
		a.renderChat()
		return a, nil

	case conversationsLoaded:
		if msg.err != nil {
			a.status = "could not load conversations"
			a.log.Warn("conversation list failed", zap.Error(msg.err))
			return a, nil
		}
		a.convs = msg.list
		return a, nil

	case attachmentSent:
		if msg.err != nil {
			a.status = "attachment failed: " + msg.err.Error()
		} else {
			a.status = ""
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.shutdown()
			return a, tea.Quit
		}
		if a.focused == paneSidebar {
			return a.updateSidebar(msg)
		}
		return a.updateChat(msg)
	}
	return a, nil
}

func (a *app) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		a.shutdown()
		return a, tea.Quit
	case "up", "k":
		if a.selected > 0 {
			a.selected--
		}
	case "down", "j":
		if a.selected < len(a.convs)-1 {
			a.selected++
		}
	case "r":
		return a, a.loadConversations()
	case "enter", "l", "right":
		if len(a.convs) > 0 {
			a.openChat(a.convs[a.selected].OtherUserID)
		}
	}
	return a, nil
}

func (a *app) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.closeChat()
		return a, nil
	case "enter":
		text := a.input.Value()
		a.input.SetValue("")
		if cmd, handled := a.handleCommand(text); handled {
			return a, cmd
		}
		if a.tl != nil {
			if err := a.tl.Send(text); err != nil {
				a.log.Warn("send failed", zap.Error(err))
			}
		}
		return a, nil
	}

	// Every content keystroke signals typing and re-arms the quiet timer.
	if a.tl != nil && (msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace || msg.Type == tea.KeyBackspace) {
		a.tl.ComposerActivity()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleCommand intercepts composer commands. "/attach <path>" uploads a
// file and announces it; "/delete" tombstones the latest own message.
func (a *app) handleCommand(text string) (tea.Cmd, bool) {
	switch {
	case strings.HasPrefix(text, "/attach "):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/attach "))
		return a.sendAttachment(path), true
	case strings.TrimSpace(text) == "/delete":
		a.deleteLatestOwn()
		return nil, true
	}
	return nil, false
}

func (a *app) sendAttachment(path string) tea.Cmd {
	tl := a.tl
	return func() tea.Msg {
		if tl == nil {
			return attachmentSent{}
		}
		f, err := os.Open(path)
		if err != nil {
			return attachmentSent{err: err}
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return attachmentSent{err: tl.SendAttachment(ctx, filepath.Base(path), f)}
	}
}

func (a *app) deleteLatestOwn() {
	if a.tl == nil {
		return
	}
	msgs := a.tl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Self(a.sess.UserID) && !msgs[i].Deleted {
			if err := a.tl.RequestDelete(msgs[i].ID); err != nil {
				a.log.Warn("delete request failed", zap.Error(err))
			}
			return
		}
	}
}

func (a *app) openChat(peerID string) {
	conn, err := a.getConn()
	if err != nil {
		a.status = "socket unavailable"
		a.log.Warn("socket unavailable", zap.Error(err))
		return
	}

	if a.tl != nil {
		a.tl.Close()
	}

	a.peerID = peerID
	a.ledger.SetActive(peerID)
	a.tl = timeline.New(timeline.Config{
		SelfID:      a.sess.UserID,
		SelfName:    a.sess.FirstName,
		PeerID:      peerID,
		SeenDelay:   a.cfg.Chat.SeenDelay,
		QuietWindow: a.cfg.Chat.QuietWindow,
		TypingTTL:   a.cfg.Chat.TypingTTL,
	}, conn, a.api, a.api, a.log)
	a.tl.SetNotify(notifyUI)

	if err := a.tl.Open(); err != nil {
		a.log.Warn("join failed", zap.Error(err))
	}
	a.tl.Load(context.Background())

	a.focused = paneChat
	a.input.Focus()
	a.renderChat()
}

func (a *app) closeChat() {
	if a.tl != nil {
		a.tl.Close()
		a.tl = nil
	}
	a.peerID = ""
	a.ledger.SetActive("")
	a.focused = paneSidebar
	a.input.Blur()
}

// shutdown ends the session before the process exits: it announces the
// disconnect intent (the only graceful path the protocol has), logs out,
// clears presence and unread state, and tears the transport down.
func (a *app) shutdown() {
	if a.tl != nil {
		a.tl.Close()
		a.tl = nil
	}
	if a.conn != nil {
		if err := a.conn.Emit(model.EventManualDisconnect, nil); err != nil {
			a.log.Warn("manual disconnect failed", zap.Error(err))
		}
	}

	// Logout is best-effort; local state is cleared regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := auth.Logout(ctx, a.cfg.API.BaseURL, a.sess.Token); err != nil {
		a.log.Warn("logout failed", zap.Error(err))
	}

	a.tracker.Reset()
	a.ledger.Reset()
	if a.watch != nil {
		a.watch.Close()
	}
	a.conns.Teardown()
	a.conn = nil
}

func (a *app) renderChat() {
	if a.tl == nil {
		return
	}
	a.chat.SetContent(a.renderMessages())
	a.chat.GotoBottom()
}

func (a *app) renderMessages() string {
	var b strings.Builder

	switch a.tl.State() {
	case timeline.LoadInProgress:
		return mutedStyle.Render("loading history...")
	case timeline.LoadFailed:
		return errorStyle.Render("could not load history (press esc, then reopen to retry)")
	}

	msgs := a.tl.Messages()
	if len(msgs) == 0 {
		return mutedStyle.Render("Start the conversation!")
	}

	for _, m := range msgs {
		ts := ""
		if !m.CreatedAt.IsZero() {
			ts = m.CreatedAt.Local().Format("15:04")
		}

		var body string
		switch {
		case m.Deleted:
			body = tombstoneStyle.Render(m.Body)
		case m.Attachment != nil && m.Type == model.TypeImage:
			body = attachmentStyle.Render(fmt.Sprintf("[image] %s %s", m.Attachment.FileName, m.Attachment.URL))
		case m.Attachment != nil:
			body = attachmentStyle.Render(fmt.Sprintf("[file] %s %s", m.Attachment.FileName, m.Attachment.URL))
		default:
			body = m.Body
		}

		if m.Self(a.sess.UserID) {
			b.WriteString(ownMessageStyle.Render(fmt.Sprintf("%s  you: %s", ts, body)))
		} else {
			name := m.SenderName
			if name == "" {
				name = m.SenderID
			}
			b.WriteString(peerMessageStyle.Render(fmt.Sprintf("%s  %s: %s", ts, name, body)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (a *app) View() string {
	if a.width == 0 {
		return "starting..."
	}
	sidebar := a.viewSidebar()
	if a.focused == paneChat && a.tl != nil {
		return joinPanes(sidebar, a.viewChat())
	}
	return joinPanes(sidebar, mutedStyle.Render("\n  pick a conversation (enter), r to refresh, q to quit"))
}

func (a *app) viewSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DevKnot"))
	total := a.ledger.Total()
	if total > 0 {
		b.WriteString(badgeStyle.Render(fmt.Sprintf(" %d unread", total)))
	}
	b.WriteString("\n\n")

	for i, c := range a.convs {
		line := c.OtherUserID
		if a.tracker.IsOnline(c.OtherUserID) {
			line = onlineDotStyle.Render("● ") + line
		} else {
			line = mutedStyle.Render("○ ") + line
		}
		if n := a.ledger.Count(c.OtherUserID); n > 0 {
			line += badgeStyle.Render(fmt.Sprintf(" (%d)", n))
		}
		if i == a.selected && a.focused == paneSidebar {
			line = selectedItemStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if a.status != "" {
		b.WriteString("\n" + errorStyle.Render(a.status))
	}
	return sidebarStyle.Width(sidebarWidth).Height(max(5, a.height-2)).Render(b.String())
}

func (a *app) viewChat() string {
	var header strings.Builder
	header.WriteString(titleStyle.Render(a.peerID))
	if a.tracker.IsOnline(a.peerID) {
		header.WriteString(onlineDotStyle.Render("  ● online"))
	} else if seen, ok := a.tracker.LastSeen(a.peerID); ok {
		if rel := presence.FormatRelative(seen, time.Now()); rel != "" {
			header.WriteString(mutedStyle.Render("  last seen " + rel))
		}
	} else {
		header.WriteString(mutedStyle.Render("  offline"))
	}

	var footer strings.Builder
	if a.tl.PeerTyping() {
		footer.WriteString(typingStyle.Render("typing...") + "\n")
	}
	if status, ok := a.tl.LastSelfStatus(); ok {
		footer.WriteString(mutedStyle.Render("Last message: "+statusLabel(status)) + "\n")
	}
	footer.WriteString(a.input.View())

	return chatStyle.Render(header.String() + "\n\n" + a.chat.View() + "\n" + footer.String())
}

func statusLabel(s model.MessageStatus) string {
	switch s {
	case model.StatusSent:
		return "Sent"
	case model.StatusDelivered:
		return "Delivered"
	case model.StatusSeen:
		return "Seen"
	default:
		return string(s)
	}
}
