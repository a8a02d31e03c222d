package whatsapp

import (
	"context"

	"github.com/wa-ai-replybot-go/internal/models"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// chat is the outbound side of a single conversation
type chat struct {
	session *Session
	jid     types.JID
	sender  types.JID
	quoted  *waE2E.Message
}

func (c *chat) SendTyping(ctx context.Context) error {
	return c.session.client.SendChatPresence(ctx, c.jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// Reply sends text as a quoted reply to the original message
func (c *chat) Reply(ctx context.Context, to *models.InboundMessage, text string) error {
	if _, err := c.session.client.SendMessage(ctx, c.jid, buildReply(to.ID, c.sender, c.quoted, text)); err != nil {
		return err
	}

	c.session.buffer.Append(to.ChatID, models.HistoryMessage{
		Body:      text,
		FromSelf:  true,
		Timestamp: c.session.now(),
	})
	return nil
}

func buildReply(stanzaID string, sender types.JID, quoted *waE2E.Message, text string) *waE2E.Message {
	contextInfo := &waE2E.ContextInfo{
		StanzaID:      proto.String(stanzaID),
		QuotedMessage: quoted,
	}
	if !sender.IsEmpty() {
		contextInfo.Participant = proto.String(sender.ToNonAD().String())
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: contextInfo,
		},
	}
}
