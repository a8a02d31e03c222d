package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/middleware"
	"github.com/wa-ai-replybot-go/internal/models"
)

// ErrEmptyReply is returned when the response carries no reply text
var ErrEmptyReply = errors.New("no reply content in completion response")

// Service produces a reply for one inbound message
type Service interface {
	Complete(ctx context.Context, systemPrompt string, history []models.Message, userMessage string) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
// It makes exactly one attempt per call.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	httpClient  *http.Client
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewClient creates a completion client
func NewClient(cfg *config.AIConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		logger.WithField("baseURL", cfg.BaseURL).Warn("TLS certificate verification disabled for completion endpoint")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: metrics,
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// BuildMessages lays out [system] + history + [user]
func BuildMessages(systemPrompt string, history []models.Message, userMessage string) []models.Message {
	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: userMessage})
	return messages
}

// Complete returns the reply text verbatim, or an error describing the failure
func (c *Client) Complete(ctx context.Context, systemPrompt string, history []models.Message, userMessage string) (string, error) {
	start := time.Now()
	reply, err := c.complete(ctx, BuildMessages(systemPrompt, history, userMessage))

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordAIRequest(c.model, status, time.Since(start))
	}
	return reply, err
}

func (c *Client) complete(ctx context.Context, messages []models.Message) (string, error) {
	jsonData, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.WithFields(logrus.Fields{
		"model":    c.model,
		"url":      url,
		"messages": len(messages),
	}).Debug("Sending completion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", fmt.Errorf("completion error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == nil || *result.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	return *result.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
