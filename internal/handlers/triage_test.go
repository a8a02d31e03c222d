package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/wa-ai-replybot-go/internal/models"
)

func TestShouldReply(t *testing.T) {
	self := []string{"8613800000000:3@s.whatsapp.net", "20411111111111@lid"}
	withKeywords := models.Settings{Keywords: []string{"Refund", "price"}}
	noKeywords := models.Settings{Keywords: []string{}}

	tests := []struct {
		name     string
		msg      models.InboundMessage
		settings models.Settings
		want     Decision
	}{
		{
			name:     "private always",
			msg:      models.InboundMessage{Body: "anything at all"},
			settings: noKeywords,
			want:     Decision{Reply: true, Reason: ReasonPrivate},
		},
		{
			name:     "group mention by phone jid",
			msg:      models.InboundMessage{IsGroup: true, Body: "@bot hi", MentionedIDs: []string{"8613800000000@s.whatsapp.net"}},
			settings: noKeywords,
			want:     Decision{Reply: true, Reason: ReasonMention},
		},
		{
			name:     "group mention by lid",
			msg:      models.InboundMessage{IsGroup: true, Body: "@bot hi", MentionedIDs: []string{"20411111111111@lid"}},
			settings: noKeywords,
			want:     Decision{Reply: true, Reason: ReasonMention},
		},
		{
			name:     "group mention of someone else",
			msg:      models.InboundMessage{IsGroup: true, Body: "@ann hi", MentionedIDs: []string{"4915100000000@s.whatsapp.net"}},
			settings: noKeywords,
			want:     Decision{},
		},
		{
			name:     "group keyword case-insensitive first match",
			msg:      models.InboundMessage{IsGroup: true, Body: "PRICE of a REFUND?"},
			settings: withKeywords,
			want:     Decision{Reply: true, Reason: ReasonKeyword, Keyword: "Refund"},
		},
		{
			name:     "group keyword substring",
			msg:      models.InboundMessage{IsGroup: true, Body: "pricelist please"},
			settings: withKeywords,
			want:     Decision{Reply: true, Reason: ReasonKeyword, Keyword: "price"},
		},
		{
			name:     "group no trigger",
			msg:      models.InboundMessage{IsGroup: true, Body: "good morning"},
			settings: withKeywords,
			want:     Decision{},
		},
		{
			name:     "group empty keyword list never replies",
			msg:      models.InboundMessage{IsGroup: true, Body: "refund price anything"},
			settings: noKeywords,
			want:     Decision{},
		},
		{
			name:     "empty keyword ignored",
			msg:      models.InboundMessage{IsGroup: true, Body: "hello"},
			settings: models.Settings{Keywords: []string{""}},
			want:     Decision{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldReply(&tt.msg, tt.settings, self); got != tt.want {
				t.Fatalf("ShouldReply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestShouldReplyWithoutSelfIDs(t *testing.T) {
	msg := models.InboundMessage{IsGroup: true, Body: "hi", MentionedIDs: []string{"123@s.whatsapp.net"}}
	if got := ShouldReply(&msg, models.Settings{}, nil); got.Reply {
		t.Fatalf("ShouldReply() = %+v, want no reply without self ids", got)
	}
}

func TestUserPart(t *testing.T) {
	tests := map[string]string{
		"123@s.whatsapp.net":     "123",
		"123:7@s.whatsapp.net":   "123",
		"123.1:7@s.whatsapp.net": "123",
		"456@lid":                "456",
		"789":                    "789",
	}
	for in, want := range tests {
		if got := userPart(in); got != want {
			t.Fatalf("userPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRandomPacerBounds(t *testing.T) {
	p := NewRandomPacer(3*time.Second, 10*time.Second)
	for i := 0; i < 2000; i++ {
		d := p.Delay()
		if d < 3000*time.Millisecond || d > 10000*time.Millisecond {
			t.Fatalf("Delay() = %s, outside [3s, 10s]", d)
		}
		if d%time.Millisecond != 0 {
			t.Fatalf("Delay() = %s, not whole milliseconds", d)
		}
	}
}

func TestRandomPacerFixed(t *testing.T) {
	p := NewRandomPacer(2*time.Second, 2*time.Second)
	if d := p.Delay(); d != 2*time.Second {
		t.Fatalf("Delay() = %s, want 2s", d)
	}
}

func TestRandomPacerSleep(t *testing.T) {
	p := NewRandomPacer(0, 0)
	if err := p.Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Sleep(ctx, time.Hour); err == nil {
		t.Fatalf("Sleep() ignored cancelled context")
	}
}
