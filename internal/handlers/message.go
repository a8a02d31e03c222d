package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/middleware"
	"github.com/wa-ai-replybot-go/internal/models"
	"github.com/wa-ai-replybot-go/internal/services/ai"
	"github.com/wa-ai-replybot-go/internal/services/storage"
	"github.com/wa-ai-replybot-go/pkg/logger"
	"github.com/wa-ai-replybot-go/pkg/markdown"
)

// Outcomes of a single message
const (
	OutcomeIgnored     = "ignored"
	OutcomeDisabled    = "disabled"
	OutcomeSkipped     = "skipped"
	OutcomeRateLimited = "rate_limited"
	OutcomeReplied     = "replied"
	OutcomeFailed      = "failed"
	OutcomeError       = "error"
	OutcomeCancelled   = "cancelled"
)

// Chat is the outbound capability bound to the chat a message came from
type Chat interface {
	SendTyping(ctx context.Context) error
	Reply(ctx context.Context, to *models.InboundMessage, text string) error
}

// Event is one inbound message together with its chat
type Event struct {
	Message models.InboundMessage
	Chat    Chat
}

// SettingsSource returns the active settings snapshot
type SettingsSource interface {
	Current() models.Settings
}

// ContextFetcher returns the trailing transcript of a chat
type ContextFetcher interface {
	Fetch(ctx context.Context, chatID string, limit int) []models.Message
}

// Options tune the handler
type Options struct {
	HistoryLimit   int
	FormatMarkdown bool
	// SelfIDs returns the bot account ids used for mention matching
	SelfIDs func() []string
}

// MessageHandler runs the reply pipeline for inbound messages
type MessageHandler struct {
	settings    SettingsSource
	ledger      *storage.Ledger
	history     ContextFetcher
	aiService   ai.Service
	rateLimiter middleware.RateLimiter
	pacer       Pacer
	metrics     *middleware.Metrics
	opts        Options
	logger      *logrus.Logger

	wg sync.WaitGroup
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	settings SettingsSource,
	ledger *storage.Ledger,
	history ContextFetcher,
	aiService ai.Service,
	rateLimiter middleware.RateLimiter,
	pacer Pacer,
	metrics *middleware.Metrics,
	opts Options,
	logger *logrus.Logger,
) *MessageHandler {
	if opts.SelfIDs == nil {
		opts.SelfIDs = func() []string { return nil }
	}
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}
	return &MessageHandler{
		settings:    settings,
		ledger:      ledger,
		history:     history,
		aiService:   aiService,
		rateLimiter: rateLimiter,
		pacer:       pacer,
		metrics:     metrics,
		opts:        opts,
		logger:      logger,
	}
}

// Run consumes events until the channel closes or ctx is done.
// Every event is handled on its own goroutine so slow replies overlap.
func (h *MessageHandler) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.wg.Add(1)
			go func(ev Event) {
				defer h.wg.Done()
				h.metrics.TrackInFlight(1)
				defer h.metrics.TrackInFlight(-1)
				h.HandleMessage(ctx, &ev.Message, ev.Chat)
			}(ev)
		}
	}
}

// Wait blocks until all in-flight messages are done
func (h *MessageHandler) Wait() {
	h.wg.Wait()
}

// HandleMessage processes one inbound message and reports how it ended
func (h *MessageHandler) HandleMessage(ctx context.Context, msg *models.InboundMessage, chat Chat) (outcome string) {
	// Ledger writes outlive a cancelled message context
	ledgerCtx := context.WithoutCancel(ctx)
	chatType := chatTypeOf(msg)
	h.metrics.RecordMessageReceived(chatType)
	defer func() { h.metrics.RecordMessageProcessed(outcome) }()

	if msg.FromSelf || msg.IsStatus || strings.TrimSpace(msg.Body) == "" {
		h.ledger.Update(ledgerCtx, func(s *models.Stats) { s.TotalMessages++ })
		return OutcomeIgnored
	}

	log := logger.WithMessage(h.logger, msg)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("Failed to process message")
			h.ledger.Update(ledgerCtx, func(s *models.Stats) { s.ErrorCount++ })
			outcome = OutcomeError
		}
	}()

	settings := h.settings.Current()

	h.ledger.Update(ledgerCtx, func(s *models.Stats) {
		s.TotalMessages++
		if msg.IsGroup {
			s.GroupMessages++
		} else {
			s.PrivateMessages++
		}
	})

	if msg.IsGroup && !settings.GroupReply {
		log.WithField("body", logger.Preview(msg.Body, 30)).Info("Group reply disabled, ignoring message")
		return OutcomeDisabled
	}
	if !msg.IsGroup && !settings.PrivateReply {
		log.WithField("body", logger.Preview(msg.Body, 30)).Info("Private reply disabled, ignoring message")
		return OutcomeDisabled
	}

	decision := ShouldReply(msg, settings, h.opts.SelfIDs())
	if !decision.Reply {
		return OutcomeSkipped
	}
	log = log.WithField("reason", decision.Reason)
	if decision.Keyword != "" {
		log = log.WithField("keyword", decision.Keyword)
	}
	log.WithField("body", msg.Body).Info("Message received")

	if h.rateLimiter != nil && !h.rateLimiter.Allow(msg.ChatID) {
		h.metrics.RecordRateLimitExceeded()
		log.Warn("Reply suppressed by rate limit")
		return OutcomeRateLimited
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", fmt.Sprint(r)).Debug("Typing indicator panicked")
			}
		}()
		if err := chat.SendTyping(ctx); err != nil {
			log.WithError(err).Debug("Failed to send typing indicator")
		}
	}()

	history := h.history.Fetch(ctx, msg.ChatID, h.opts.HistoryLimit)

	log.WithField("history", len(history)).Info("Requesting AI reply")
	reply, err := h.aiService.Complete(ctx, settings.SystemPrompt, history, msg.Body)
	if err != nil {
		log.WithError(err).Error("AI reply failed, skipping")
		h.ledger.Update(ledgerCtx, func(s *models.Stats) { s.ErrorCount++ })
		return OutcomeFailed
	}

	delay := h.pacer.Delay()
	log.WithField("delay", fmt.Sprintf("%.1fs", delay.Seconds())).Info("Delaying reply")
	if err := h.pacer.Sleep(ctx, delay); err != nil {
		log.WithError(err).Warn("Reply abandoned during pacing")
		return OutcomeCancelled
	}

	text := reply
	if h.opts.FormatMarkdown {
		text = markdown.ToWhatsApp(reply)
	}

	if err := chat.Reply(ctx, msg, text); err != nil {
		log.WithError(err).Error("Failed to send reply")
		h.ledger.Update(ledgerCtx, func(s *models.Stats) { s.ErrorCount++ })
		return OutcomeError
	}

	h.metrics.RecordReplySent(chatType, delay)
	log.WithField("reply", text).Info("Reply sent")
	h.ledger.Update(ledgerCtx, func(s *models.Stats) {
		s.TotalReplies++
		s.SuccessCount++
	})
	return OutcomeReplied
}

func chatTypeOf(msg *models.InboundMessage) string {
	if msg.IsGroup {
		return "group"
	}
	return "private"
}
