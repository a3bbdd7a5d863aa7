package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/evlinhq/evlin-backend/internal/pkg/httpx"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// FunctionCall is a model-requested tool invocation.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool result (or error payload) back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one unit of content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content is one conversation turn on the wire. Role is "user" or "model";
// function responses travel under the "user" role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// FunctionDeclaration describes one callable tool. Parameters is an
// OpenAPI-style schema object.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Result is the first candidate of a generateContent response, flattened.
type Result struct {
	Text          string
	FunctionCalls []FunctionCall
	FinishReason  string
}

// HasFunctionCalls reports whether the model asked for tools this turn.
func (r *Result) HasFunctionCalls() bool { return r != nil && len(r.FunctionCalls) > 0 }

// Client is the Gemini API surface the agent loop consumes.
type Client interface {
	// GenerateContent runs one model turn over the conversation so far.
	// Declared tools are a closed set; the model can only request those.
	GenerateContent(ctx context.Context, system string, history []Content, tools []FunctionDeclaration) (*Result, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries  int
	temperature float64
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	baseURL := envutil.String("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	baseURL = strings.TrimRight(baseURL, "/")
	model := envutil.String("GEMINI_MODEL", "gemini-2.0-flash")
	timeoutSec := envutil.Int("GEMINI_TIMEOUT_SECONDS", 120)
	maxRetries := envutil.Int("GEMINI_MAX_RETRIES", 3)

	temperature := 0.2
	if v := strings.TrimSpace(os.Getenv("GEMINI_TEMPERATURE")); v != "" {
		if _, err := fmt.Sscanf(v, "%f", &temperature); err != nil {
			return nil, fmt.Errorf("invalid GEMINI_TEMPERATURE %q", v)
		}
	}

	return &client{
		log:         log.With("client", "Gemini"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:  maxRetries,
		temperature: temperature,
	}, nil
}

type generateRequest struct {
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Contents          []Content        `json:"contents"`
	Tools             []toolsEnvelope  `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type toolsEnvelope struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *geminiHTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func (c *client) GenerateContent(ctx context.Context, system string, history []Content, tools []FunctionDeclaration) (*Result, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("gemini: empty conversation")
	}

	req := generateRequest{
		Contents:         history,
		GenerationConfig: generationConfig{Temperature: c.temperature},
	}
	if system = strings.TrimSpace(system); system != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	if len(tools) > 0 {
		req.Tools = []toolsEnvelope{{FunctionDeclarations: tools}}
	}

	var resp generateResponse
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	if err := c.do(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	cand := resp.Candidates[0]
	out := &Result{FinishReason: cand.FinishReason}
	var texts []string
	for _, p := range cand.Content.Parts {
		if p.FunctionCall != nil {
			out.FunctionCalls = append(out.FunctionCalls, *p.FunctionCall)
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	out.Text = strings.TrimSpace(strings.Join(texts, "\n"))
	return out, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("gemini decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !retryable(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("Gemini request retrying",
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

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

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
		return resp, raw, &geminiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func retryable(err error) bool {
	var httpErr *geminiHTTPError
	if errors.As(err, &httpErr) {
		return httpx.IsRetryableHTTPStatus(httpErr.StatusCode)
	}
	return httpx.IsRetryableError(err)
}
