package history

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/models"
)

// DefaultLimit is the size of the trailing context window
const DefaultLimit = 5

// Source returns up to limit recent messages of a chat, newest first
type Source interface {
	FetchMessages(ctx context.Context, chatID string, limit int) ([]models.HistoryMessage, error)
}

// Assembler turns raw chat history into a role-tagged transcript
type Assembler struct {
	source Source
	logger *logrus.Logger
}

func NewAssembler(source Source, logger *logrus.Logger) *Assembler {
	return &Assembler{source: source, logger: logger}
}

// Fetch returns at most DefaultLimit turns, oldest first. Errors degrade to an empty transcript.
func (a *Assembler) Fetch(ctx context.Context, chatID string, limit int) []models.Message {
	if limit <= 0 {
		limit = DefaultLimit
	}

	raw, err := a.source.FetchMessages(ctx, chatID, limit)
	if err != nil {
		a.logger.WithError(err).WithField("chatID", chatID).Warn("Failed to fetch chat history")
		return []models.Message{}
	}

	turns := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		msg := raw[i]
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		role := models.RoleUser
		if msg.FromSelf {
			role = models.RoleAssistant
		}
		turns = append(turns, models.Message{Role: role, Content: msg.Body})
	}

	if len(turns) > DefaultLimit {
		turns = turns[len(turns)-DefaultLimit:]
	}
	return turns
}
