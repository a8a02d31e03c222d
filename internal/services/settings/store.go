package settings

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
)

// DefaultSystemPrompt is used when no prompt file is present
const DefaultSystemPrompt = "你是一个幽默、专业的个人助理，帮机主回复消息。"

const (
	keyPrivateReply = "PRIVATE_REPLY"
	keyGroupReply   = "GROUP_REPLY"
)

// Store reads the reply settings from three plain-text sources.
// Each field falls back to its previous value on its own when its source cannot be read.
type Store struct {
	togglesPath  string
	keywordsPath string
	promptPath   string
	logger       *logrus.Logger

	mu   sync.Mutex
	last models.Settings
}

// NewStore creates a store rooted at cfg.Dir
func NewStore(cfg *config.SettingsConfig, logger *logrus.Logger) *Store {
	join := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(cfg.Dir, name)
	}
	return &Store{
		togglesPath:  join(cfg.TogglesFile),
		keywordsPath: join(cfg.KeywordsFile),
		promptPath:   join(cfg.PromptFile),
		logger:       logger,
		last: models.Settings{
			PrivateReply: true,
			GroupReply:   true,
			Keywords:     []string{},
			SystemPrompt: DefaultSystemPrompt,
		},
	}
}

// Paths returns the watched source files
func (s *Store) Paths() []string {
	return []string{s.togglesPath, s.keywordsPath, s.promptPath}
}

// Load reads all sources and returns a fresh snapshot. It never fails.
func (s *Store) Load() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.last
	next.Keywords = append([]string(nil), s.last.Keywords...)

	if data, err := os.ReadFile(s.togglesPath); err == nil {
		parseToggles(data, &next)
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("path", s.togglesPath).Warn("Failed to read toggles, keeping previous values")
	}

	if data, err := os.ReadFile(s.keywordsPath); err == nil {
		next.Keywords = parseKeywords(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("path", s.keywordsPath).Warn("Failed to read keywords, keeping previous list")
	}

	data, err := os.ReadFile(s.promptPath)
	switch {
	case err == nil:
		next.SystemPrompt = strings.TrimSpace(string(data))
		if next.SystemPrompt == "" {
			next.SystemPrompt = DefaultSystemPrompt
		}
	case errors.Is(err, os.ErrNotExist):
		next.SystemPrompt = DefaultSystemPrompt
	default:
		s.logger.WithError(err).WithField("path", s.promptPath).Warn("Failed to read prompt, keeping previous prompt")
	}

	next.LoadedAt = time.Now()
	s.last = next

	s.logger.WithFields(logrus.Fields{
		"privateReply": next.PrivateReply,
		"groupReply":   next.GroupReply,
		"keywords":     len(next.Keywords),
	}).Info("Reply settings loaded")

	return next
}

func parseToggles(data []byte, out *models.Settings) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		on := strings.EqualFold(strings.TrimSpace(value), "on")
		switch strings.TrimSpace(key) {
		case keyPrivateReply:
			out.PrivateReply = on
		case keyGroupReply:
			out.GroupReply = on
		}
	}
}

func parseKeywords(data []byte) []string {
	keywords := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	return keywords
}
