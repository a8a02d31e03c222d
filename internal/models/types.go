package models

import (
	"time"
)

// Roles used in completion transcripts
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one role-tagged turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryMessage is a raw chat history entry as the platform reports it
type HistoryMessage struct {
	Body      string
	FromSelf  bool
	Timestamp time.Time
}

// InboundMessage is a platform-neutral view of a received message
type InboundMessage struct {
	ID           string
	ChatID       string
	ChatName     string
	SenderID     string
	SenderName   string
	Body         string
	FromSelf     bool
	IsStatus     bool
	IsGroup      bool
	MentionedIDs []string
	Timestamp    time.Time
}

// Settings is an immutable snapshot of the hot-reloaded reply configuration
type Settings struct {
	PrivateReply bool
	GroupReply   bool
	Keywords     []string
	SystemPrompt string

	Version  uint64
	LoadedAt time.Time
}

// Stats is the durable usage record
type Stats struct {
	TotalMessages   uint64     `json:"total_messages"`
	TotalReplies    uint64     `json:"total_replies"`
	PrivateMessages uint64     `json:"private_messages"`
	GroupMessages   uint64     `json:"group_messages"`
	SuccessCount    uint64     `json:"success_count"`
	ErrorCount      uint64     `json:"error_count"`
	StartTime       time.Time  `json:"start_time"`
	LastActive      *time.Time `json:"last_active"`
}

// NewStats returns a zeroed record started now
func NewStats(now time.Time) *Stats {
	return &Stats{StartTime: now}
}

// LoginStatus is the record shared with the external dashboard
type LoginStatus struct {
	Status      string    `json:"status"`
	QRAvailable bool      `json:"qr_available"`
	QRCode      string    `json:"qr_code,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
