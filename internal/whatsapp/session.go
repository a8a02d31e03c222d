package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/handlers"
	"github.com/wa-ai-replybot-go/internal/middleware"
	"github.com/wa-ai-replybot-go/internal/models"
	"github.com/wa-ai-replybot-go/internal/services/history"
	"github.com/wa-ai-replybot-go/internal/services/storage"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
)

// Login states written to the status file
const (
	StatusWaiting      = "waiting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusLoggedOut    = "logged_out"
)

const (
	qrImageName = "qr_code.png"
	qrImageSize = 400

	groupNameTTL     = time.Hour
	groupInfoTimeout = 5 * time.Second
)

// groupInfoGetter is the part of the client used to name groups
type groupInfoGetter interface {
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
}

// Session owns the WhatsApp connection and turns platform events into handler events
type Session struct {
	cfg     *config.WhatsAppConfig
	client  *whatsmeow.Client
	buffer  *history.Buffer
	metrics *middleware.Metrics
	logger  *logrus.Logger
	events  chan handlers.Event
	now     func() time.Time
	qrOut   io.Writer
	groups  groupInfoGetter
	names   *cache.Cache

	ctx    context.Context
	mu     sync.RWMutex
	status models.LoginStatus
}

// NewSession opens the device store and prepares a client; it does not connect
func NewSession(ctx context.Context, cfg *config.WhatsAppConfig, buffer *history.Buffer, metrics *middleware.Metrics, logger *logrus.Logger) (*Session, error) {
	if dir := sessionDir(cfg.SessionDB); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	container, err := sqlstore.New(ctx, "sqlite3", cfg.SessionDB, newWALogger(logger, "Database", cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	s := newSession(cfg, buffer, metrics, logger)
	s.client = whatsmeow.NewClient(device, newWALogger(logger, "Client", cfg.LogLevel))
	s.groups = s.client
	s.client.AddEventHandler(s.handleEvent)
	return s, nil
}

func newSession(cfg *config.WhatsAppConfig, buffer *history.Buffer, metrics *middleware.Metrics, logger *logrus.Logger) *Session {
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}
	return &Session{
		cfg:     cfg,
		buffer:  buffer,
		metrics: metrics,
		logger:  logger,
		events:  make(chan handlers.Event, 64),
		now:     time.Now,
		qrOut:   os.Stdout,
		names:   cache.New(groupNameTTL, 2*groupNameTTL),
		ctx:     context.Background(),
	}
}

// Events returns the stream of inbound messages
func (s *Session) Events() <-chan handlers.Event {
	return s.events
}

// Start connects, rendering a QR code on the terminal when the device is not paired yet
func (s *Session) Start(ctx context.Context) error {
	s.ctx = ctx

	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.setStatus(StatusWaiting, "")
	go s.watchQR(qrChan)
	return nil
}

func (s *Session) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			s.showQR(evt.Code)
		case "success":
			s.logger.Info("QR login succeeded")
		default:
			s.logger.WithField("event", evt.Event).Warn("QR login ended")
		}
	}
}

// showQR renders a login code on the terminal and as an image for the dashboard
func (s *Session) showQR(code string) {
	s.logger.Info("Scan the QR code below with WhatsApp to log in")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, s.qrOut)

	if path := s.qrImagePath(); path != "" {
		png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
		if err != nil {
			s.logger.WithError(err).Error("Failed to render QR image")
		} else if err := storage.WriteAtomic(path, png); err != nil {
			s.logger.WithError(err).Error("Failed to write QR image")
		} else {
			s.logger.WithField("path", path).Info("QR image saved for the dashboard")
		}
	}
	s.setStatus(StatusWaiting, code)
}

// clearQR removes a stale login image once the device is paired
func (s *Session) clearQR() {
	path := s.qrImagePath()
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).Warn("Failed to remove QR image")
	}
}

// qrImagePath sits next to the status file, where the dashboard looks for it
func (s *Session) qrImagePath() string {
	if s.cfg.StatusFile == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(s.cfg.StatusFile), qrImageName)
}

// Disconnect closes the connection
func (s *Session) Disconnect() {
	if s.client != nil {
		s.client.Disconnect()
	}
	s.setStatus(StatusDisconnected, "")
	s.metrics.SetConnected(false)
}

// LoginStatus returns the current login record
func (s *Session) LoginStatus() models.LoginStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SelfIDs returns the phone-number and LID identities of the paired account
func (s *Session) SelfIDs() []string {
	if s.client == nil || s.client.Store == nil {
		return nil
	}
	var ids []string
	if s.client.Store.ID != nil {
		ids = append(ids, s.client.Store.ID.String())
	}
	if !s.client.Store.LID.IsEmpty() {
		ids = append(ids, s.client.Store.LID.String())
	}
	return ids
}

func (s *Session) setStatus(status, qr string) {
	record := models.LoginStatus{
		Status:      status,
		QRAvailable: qr != "",
		QRCode:      qr,
		Timestamp:   s.now(),
	}

	s.mu.Lock()
	s.status = record
	s.mu.Unlock()

	if s.cfg.StatusFile == "" {
		return
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode login status")
		return
	}
	if err := storage.WriteAtomic(s.cfg.StatusFile, data); err != nil {
		s.logger.WithError(err).Error("Failed to write login status")
	}
}

// groupName returns the subject of a group, or "" when it cannot be resolved
func (s *Session) groupName(jid types.JID) string {
	key := jid.String()
	if name, ok := s.names.Get(key); ok {
		return name.(string)
	}
	if s.groups == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(s.ctx, groupInfoTimeout)
	defer cancel()

	info, err := s.groups.GetGroupInfo(ctx, jid)
	if err != nil {
		s.logger.WithError(err).WithField("group", key).Debug("Failed to resolve group name")
		s.names.Set(key, "", time.Minute)
		return ""
	}
	s.names.Set(key, info.Name, cache.DefaultExpiration)
	return info.Name
}

// sessionDir extracts the directory of a sqlite DSN such as "file:data/session.db?_foreign_keys=on"
func sessionDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
