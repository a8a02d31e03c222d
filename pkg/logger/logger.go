package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new logger instance
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	switch cfg.Output {
	case "file", "both":
		logDir := filepath.Dir(cfg.File.Path)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}

		var out io.Writer = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize, // megabytes
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge, // days
			Compress:   true,
		}
		if cfg.Output == "both" {
			out = io.MultiWriter(os.Stdout, out)
		}
		logger.SetOutput(out)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger, nil
}

// WithMessage adds the common per-message fields
func WithMessage(logger logrus.FieldLogger, msg *models.InboundMessage) *logrus.Entry {
	chat := msg.ChatName
	if chat == "" {
		chat = msg.ChatID
	}
	return logger.WithFields(logrus.Fields{
		"chat":    chat,
		"sender":  senderLabel(msg),
		"isGroup": msg.IsGroup,
	})
}

// senderLabel prefers the push name, then the bare user part of the sender id
func senderLabel(msg *models.InboundMessage) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	if msg.ChatName != "" && !msg.IsGroup {
		return msg.ChatName
	}
	if user, _, ok := strings.Cut(msg.SenderID, "@"); ok {
		return user
	}
	return msg.SenderID
}

// Preview shortens a message body for log lines
func Preview(body string, n int) string {
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n])
}
