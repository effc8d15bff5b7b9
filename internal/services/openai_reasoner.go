package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/synaptiq/insight-engine/internal/logger"
	"github.com/synaptiq/insight-engine/internal/utils"
)

type openAIReasoner struct {
	httpClient  *http.Client
	log         *logger.Logger
	apiKey      string
	baseURL     string
	model       string
	callTimeout time.Duration
	maxRetries  int
}

func NewOpenAIReasoner(log *logger.Logger) (Reasoner, error) {
	serviceLog := log.With("service", "OpenAIReasoner")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	baseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1", log)
	model := utils.GetEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini", log)
	callTimeout := utils.GetEnvAsDuration("REASONER_TIMEOUT", 30*time.Second, log)
	maxRetries := utils.GetEnvAsInt("REASONER_MAX_RETRIES", 3, log)

	return &openAIReasoner{
		httpClient:  &http.Client{Timeout: callTimeout + 5*time.Second},
		log:         serviceLog,
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		callTimeout: callTimeout,
		maxRetries:  maxRetries,
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize makes one chat-completions call with a mandatory per-call
// timeout. 429 and 5xx responses are retried with exponential backoff; once
// retries are exhausted the call maps onto the reasoner error taxonomy.
func (c *openAIReasoner) Summarize(ctx context.Context, req ReasonRequest) (*ReasonResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	content, err := c.postWithRetry(callCtx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var result ReasonResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &result, nil
}

func (c *openAIReasoner) postWithRetry(ctx context.Context, url string, body []byte) (string, error) {
	backoff := 1 * time.Second
	var lastStatus int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return "", err
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var parsed chatResponse
			if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Choices) == 0 {
				return "", fmt.Errorf("%w: unexpected completion payload", ErrMalformedResponse)
			}
			return parsed.Choices[0].Message.Content, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastStatus = resp.StatusCode
			if attempt == c.maxRetries {
				break
			}
			c.log.Warn("Reasoner request retrying",
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
			)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		default:
			return "", fmt.Errorf("reasoner: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status 429 after %d attempts", ErrRateLimited, c.maxRetries+1)
	}
	return "", fmt.Errorf("reasoner: status %d after %d attempts", lastStatus, c.maxRetries+1)
}
