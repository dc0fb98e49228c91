package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dermalens/dermalens-backend/internal/logger"
)

// SkinAnalysis is the structured result the vision model returns for one scan.
// Scores are 0-100 severity; confidence is the model's own estimate of how
// usable the photos were.
type SkinAnalysis struct {
	Acne      float64 `json:"acne"`
	Redness   float64 `json:"redness"`
	Oiliness  float64 `json:"oiliness"`
	Dryness   float64 `json:"dryness"`
	Texture   float64 `json:"texture"`
	PoreSize  float64 `json:"pore_size"`
	DarkSpots float64 `json:"dark_spots"`

	Confidence     float64  `json:"confidence"`
	RetakeRequired bool     `json:"retake_required"`
	RetakeReasons  []string `json:"retake_reasons"`
	Notes          string   `json:"notes"`
}

type ChatTurn struct {
	Role    string
	Content string
}

type OpenAIClient interface {
	AnalyzeSkin(ctx context.Context, imageURLs []string) (*SkinAnalysis, string, error)
	ChatReply(ctx context.Context, system string, turns []ChatTurn) (string, string, error)
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	chatModel  string
	httpClient *http.Client

	maxRetries int
}

func NewOpenAIClient(log *logger.Logger) (OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_VISION_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	chatModel := os.Getenv("OPENAI_CHAT_MODEL")
	if chatModel == "" {
		chatModel = model
	}

	// IMPORTANT: default timeout higher for vision workloads
	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// caller cancellation is checked in the retry loop via ctx.Err()
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIClient) do(ctx context.Context, method, path string, body any, out any) error {
	// exponential backoff: 1s, 2s, 4s, 8s (cap ~10s)
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		// Respect Retry-After when present
		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}

		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- Chat Completions ----

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model          string                  `json:"model"`
	Messages       []chatCompletionMessage `json:"messages"`
	Temperature    float64                 `json:"temperature,omitempty"`
	ResponseFormat map[string]any          `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

const analyzeSystemPrompt = `You are a dermatological image analysis assistant. Score the visible skin condition across the provided face photos. Every score is severity from 0 (none) to 100 (extreme). If the photos are blurry, badly lit, obstructed, or not a face, set retake_required true and list the reasons. Respond with JSON only.`

var skinAnalysisSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required": []string{
		"acne", "redness", "oiliness", "dryness", "texture", "pore_size", "dark_spots",
		"confidence", "retake_required", "retake_reasons", "notes",
	},
	"properties": map[string]any{
		"acne":            map[string]any{"type": "number"},
		"redness":         map[string]any{"type": "number"},
		"oiliness":        map[string]any{"type": "number"},
		"dryness":         map[string]any{"type": "number"},
		"texture":         map[string]any{"type": "number"},
		"pore_size":       map[string]any{"type": "number"},
		"dark_spots":      map[string]any{"type": "number"},
		"confidence":      map[string]any{"type": "number"},
		"retake_required": map[string]any{"type": "boolean"},
		"retake_reasons":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"notes":           map[string]any{"type": "string"},
	},
}

func (c *openAIClient) AnalyzeSkin(ctx context.Context, imageURLs []string) (*SkinAnalysis, string, error) {
	if len(imageURLs) == 0 {
		return nil, "", errors.New("at least one image URL required")
	}

	parts := []chatContentPart{
		{Type: "text", Text: "Analyze these face photos and score the skin condition."},
	}
	for _, u := range imageURLs {
		p := chatContentPart{Type: "image_url"}
		p.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: u}
		parts = append(parts, p)
	}

	req := chatCompletionRequest{
		Model: c.model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: analyzeSystemPrompt},
			{Role: "user", Content: parts},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "skin_analysis",
				"strict": true,
				"schema": skinAnalysisSchema,
			},
		},
	}

	var resp chatCompletionResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Choices) == 0 {
		return nil, "", errors.New("openai returned no choices")
	}
	if refusal := resp.Choices[0].Message.Refusal; refusal != "" {
		return nil, "", fmt.Errorf("openai refused analysis: %s", refusal)
	}

	var analysis SkinAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, "", fmt.Errorf("openai analysis decode error: %w; raw=%s", err, resp.Choices[0].Message.Content)
	}
	return &analysis, resp.Model, nil
}

func (c *openAIClient) ChatReply(ctx context.Context, system string, turns []ChatTurn) (string, string, error) {
	msgs := make([]chatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, chatCompletionMessage{Role: "system", Content: system})
	for _, t := range turns {
		msgs = append(msgs, chatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	req := chatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: 0.7,
	}

	var resp chatCompletionResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Choices) == 0 {
		return "", "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, resp.Model, nil
}
