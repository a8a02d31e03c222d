package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/wa-ai-replybot-go/internal/models"
)

// Buffer keeps the most recent messages of each chat in memory.
// It stands in for a platform history API; idle chats expire after ttl.
type Buffer struct {
	size  int
	ttl   time.Duration
	chats *cache.Cache
	mu    sync.Mutex
}

func NewBuffer(size int, ttl time.Duration) *Buffer {
	if size <= 0 {
		size = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Buffer{
		size:  size,
		ttl:   ttl,
		chats: cache.New(ttl, ttl/2),
	}
}

// Append records a message, keeping chronological order by timestamp
func (b *Buffer) Append(chatID string, msg models.HistoryMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var entries []models.HistoryMessage
	if val, found := b.chats.Get(chatID); found {
		entries = val.([]models.HistoryMessage)
	}

	next := make([]models.HistoryMessage, 0, len(entries)+1)
	next = append(next, entries...)
	next = append(next, msg)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Timestamp.Before(next[j].Timestamp)
	})
	if len(next) > b.size {
		next = next[len(next)-b.size:]
	}

	b.chats.Set(chatID, next, b.ttl)
}

// FetchMessages implements Source, newest first
func (b *Buffer) FetchMessages(ctx context.Context, chatID string, limit int) ([]models.HistoryMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	val, found := b.chats.Get(chatID)
	b.mu.Unlock()
	if !found {
		return []models.HistoryMessage{}, nil
	}

	entries := val.([]models.HistoryMessage)
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]models.HistoryMessage, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Chats reports how many chats currently hold history
func (b *Buffer) Chats() int {
	return b.chats.ItemCount()
}
