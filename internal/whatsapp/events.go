package whatsapp

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/wa-ai-replybot-go/internal/handlers"
	"github.com/wa-ai-replybot-go/internal/models"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func (s *Session) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.onMessage(v)
	case *events.HistorySync:
		s.seedHistory(v)
	case *events.Connected:
		s.logger.Info("WhatsApp connected")
		s.setStatus(StatusConnected, "")
		s.clearQR()
		s.metrics.SetConnected(true)
	case *events.Disconnected:
		s.logger.Warn("WhatsApp disconnected")
		s.setStatus(StatusDisconnected, "")
		s.metrics.SetConnected(false)
	case *events.LoggedOut:
		s.logger.WithField("reason", v.Reason).Warn("WhatsApp session logged out")
		s.setStatus(StatusLoggedOut, "")
		s.metrics.SetConnected(false)
	case *events.GroupInfo:
		if v.Name != nil {
			s.names.Set(v.JID.String(), v.Name.Name, cache.DefaultExpiration)
		}
	case *events.StreamReplaced:
		s.logger.Warn("WhatsApp session opened elsewhere")
	}
}

func (s *Session) onMessage(v *events.Message) {
	msg := toInbound(v.Info, v.Message)
	if msg.IsGroup {
		if name := s.groupName(v.Info.Chat); name != "" {
			msg.ChatName = name
		}
	}

	if !msg.IsStatus && strings.TrimSpace(msg.Body) != "" {
		s.buffer.Append(msg.ChatID, models.HistoryMessage{
			Body:      msg.Body,
			FromSelf:  msg.FromSelf,
			Timestamp: msg.Timestamp,
		})
	}

	ev := handlers.Event{
		Message: msg,
		Chat: &chat{
			session: s,
			jid:     v.Info.Chat,
			sender:  v.Info.Sender,
			quoted:  v.Message,
		},
	}

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) seedHistory(v *events.HistorySync) {
	seeded := 0
	for _, conv := range v.Data.GetConversations() {
		chatID := conv.GetID()
		for _, item := range conv.GetMessages() {
			web := item.GetMessage()
			body := extractText(web.GetMessage())
			if strings.TrimSpace(body) == "" {
				continue
			}
			s.buffer.Append(chatID, models.HistoryMessage{
				Body:      body,
				FromSelf:  web.GetKey().GetFromMe(),
				Timestamp: time.Unix(int64(web.GetMessageTimestamp()), 0),
			})
			seeded++
		}
	}
	if seeded > 0 {
		s.logger.WithField("messages", seeded).Debug("Seeded history from sync")
	}
}

// toInbound converts a platform message into the handler's view of it
func toInbound(info types.MessageInfo, msg *waE2E.Message) models.InboundMessage {
	chatName := info.PushName
	if info.IsGroup {
		chatName = info.Chat.User
	}
	return models.InboundMessage{
		ID:           string(info.ID),
		ChatID:       info.Chat.String(),
		ChatName:     chatName,
		SenderID:     info.Sender.String(),
		SenderName:   info.PushName,
		Body:         extractText(msg),
		FromSelf:     info.IsFromMe,
		IsStatus:     info.Chat.String() == types.StatusBroadcastJID.String(),
		IsGroup:      info.IsGroup,
		MentionedIDs: mentionsOf(msg),
		Timestamp:    info.Timestamp,
	}
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if video := msg.GetVideoMessage(); video != nil {
		return video.GetCaption()
	}
	return ""
}

func mentionsOf(msg *waE2E.Message) []string {
	if msg == nil {
		return nil
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetContextInfo().GetMentionedJID()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetContextInfo().GetMentionedJID()
	}
	if video := msg.GetVideoMessage(); video != nil {
		return video.GetContextInfo().GetMentionedJID()
	}
	return nil
}
