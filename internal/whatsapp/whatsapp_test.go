package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
	"github.com/wa-ai-replybot-go/internal/services/history"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSession(t *testing.T) *Session {
	t.Helper()
	cfg := &config.WhatsAppConfig{StatusFile: filepath.Join(t.TempDir(), "login_status.json")}
	s := newSession(cfg, history.NewBuffer(20, time.Hour), nil, testLogger())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted hi")}}, "quoted hi"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}}, "look"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText(tt.msg); got != tt.want {
				t.Fatalf("extractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToInbound(t *testing.T) {
	group := types.NewJID("120363000000000001", types.GroupServer)
	sender := types.NewJID("4915100000000", types.DefaultUserServer)
	ts := time.Unix(1700000000, 0)

	info := types.MessageInfo{
		MessageSource: types.MessageSource{Chat: group, Sender: sender, IsGroup: true},
		ID:            "3EB0ABC",
		PushName:      "Ann",
		Timestamp:     ts,
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String("@bot hi"),
		ContextInfo: &waE2E.ContextInfo{MentionedJID: []string{"8613800000000@s.whatsapp.net"}},
	}}

	got := toInbound(info, msg)
	want := models.InboundMessage{
		ID:           "3EB0ABC",
		ChatID:       "120363000000000001@g.us",
		ChatName:     "120363000000000001",
		SenderID:     "4915100000000@s.whatsapp.net",
		SenderName:   "Ann",
		Body:         "@bot hi",
		IsGroup:      true,
		MentionedIDs: []string{"8613800000000@s.whatsapp.net"},
		Timestamp:    ts,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("toInbound() = %+v, want %+v", got, want)
	}
}

func TestToInboundStatusBroadcast(t *testing.T) {
	info := types.MessageInfo{
		MessageSource: types.MessageSource{Chat: types.StatusBroadcastJID, Sender: types.NewJID("1", types.DefaultUserServer)},
	}
	got := toInbound(info, &waE2E.Message{Conversation: proto.String("story")})
	if !got.IsStatus {
		t.Fatalf("status broadcast not flagged")
	}
}

func TestBuildReply(t *testing.T) {
	original := &waE2E.Message{Conversation: proto.String("hello")}
	sender := types.NewADJID("4915100000000", 0, 3)

	got := buildReply("3EB0ABC", sender, original, "hi there")

	ext := got.GetExtendedTextMessage()
	if ext.GetText() != "hi there" {
		t.Fatalf("text = %q", ext.GetText())
	}
	info := ext.GetContextInfo()
	if info.GetStanzaID() != "3EB0ABC" {
		t.Fatalf("stanza = %q", info.GetStanzaID())
	}
	if info.GetParticipant() != "4915100000000@s.whatsapp.net" {
		t.Fatalf("participant = %q", info.GetParticipant())
	}
	if info.GetQuotedMessage().GetConversation() != "hello" {
		t.Fatalf("quoted message not attached")
	}
}

func TestSetStatusWritesFile(t *testing.T) {
	s := testSession(t)

	s.setStatus(StatusWaiting, "2@abc")

	data, err := os.ReadFile(s.cfg.StatusFile)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	var record models.LoginStatus
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if record.Status != StatusWaiting || !record.QRAvailable || record.QRCode != "2@abc" {
		t.Fatalf("record = %+v", record)
	}

	s.setStatus(StatusConnected, "")
	if got := s.LoginStatus(); got.Status != StatusConnected || got.QRAvailable || got.QRCode != "" {
		t.Fatalf("LoginStatus() = %+v", got)
	}
}

func TestOnMessageForwardsAndBuffers(t *testing.T) {
	s := testSession(t)
	chatJID := types.NewJID("4915100000000", types.DefaultUserServer)

	s.onMessage(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chatJID, Sender: chatJID},
			ID:            "A1",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	select {
	case ev := <-s.Events():
		if ev.Message.Body != "hello" || ev.Chat == nil {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatalf("no event forwarded")
	}

	got, _ := s.buffer.FetchMessages(context.Background(), chatJID.String(), 5)
	if len(got) != 1 || got[0].Body != "hello" {
		t.Fatalf("buffer = %+v", got)
	}
}

func TestSessionDir(t *testing.T) {
	tests := map[string]string{
		"file:data/session.db?_foreign_keys=on": "data",
		"session.db":                            "",
		"file::memory:?cache=shared":            "",
	}
	for dsn, want := range tests {
		if got := sessionDir(dsn); got != want {
			t.Fatalf("sessionDir(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestQRImageLifecycle(t *testing.T) {
	s := testSession(t)
	s.qrOut = io.Discard
	image := filepath.Join(filepath.Dir(s.cfg.StatusFile), "qr_code.png")

	s.showQR("2@login-code,abc,def")

	data, err := os.ReadFile(image)
	if err != nil {
		t.Fatalf("QR image not written: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Fatalf("QR image is not a PNG")
	}
	if got := s.LoginStatus(); got.Status != StatusWaiting || !got.QRAvailable {
		t.Fatalf("LoginStatus() = %+v", got)
	}

	s.handleEvent(&events.Connected{})

	if _, err := os.Stat(image); !os.IsNotExist(err) {
		t.Fatalf("QR image still present after connect: %v", err)
	}
	if got := s.LoginStatus(); got.Status != StatusConnected || got.QRAvailable {
		t.Fatalf("LoginStatus() = %+v", got)
	}
}

type stubGroups struct {
	name  string
	err   error
	calls int
}

func (g *stubGroups) GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &types.GroupInfo{JID: jid, GroupName: types.GroupName{Name: g.name}}, nil
}

func groupMessage(group types.JID, body string) *events.Message {
	sender := types.NewJID("4915100000000", types.DefaultUserServer)
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: group, Sender: sender, IsGroup: true},
			ID:            "G1",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String(body)},
	}
}

func TestOnMessageNamesGroups(t *testing.T) {
	s := testSession(t)
	groups := &stubGroups{name: "Family"}
	s.groups = groups
	group := types.NewJID("120363000000000001", types.GroupServer)

	for i := 0; i < 2; i++ {
		s.onMessage(groupMessage(group, "hi all"))
		ev := <-s.Events()
		if ev.Message.ChatName != "Family" {
			t.Fatalf("ChatName = %q, want Family", ev.Message.ChatName)
		}
	}
	if groups.calls != 1 {
		t.Fatalf("GetGroupInfo calls = %d, want 1 (cached)", groups.calls)
	}

	s.handleEvent(&events.GroupInfo{JID: group, Name: &types.GroupName{Name: "Family 2026"}})
	s.onMessage(groupMessage(group, "renamed"))
	if ev := <-s.Events(); ev.Message.ChatName != "Family 2026" {
		t.Fatalf("ChatName after rename = %q", ev.Message.ChatName)
	}
}

func TestOnMessageGroupNameFallback(t *testing.T) {
	s := testSession(t)
	s.groups = &stubGroups{err: errors.New("not a participant")}
	group := types.NewJID("120363000000000002", types.GroupServer)

	s.onMessage(groupMessage(group, "hi"))
	if ev := <-s.Events(); ev.Message.ChatName != "120363000000000002" {
		t.Fatalf("ChatName = %q, want group id", ev.Message.ChatName)
	}
}
