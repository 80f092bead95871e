package analysis

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"meeting-insights-go/internal/config"
)

// Kind selects one of the three analyses run over a transcript.
type Kind string

const (
	Summary         Kind = "summary"
	StructuredNote  Kind = "structured_note"
	Recommendations Kind = "recommendations"
)

// Kinds lists every analysis in response order.
var Kinds = []Kind{Summary, StructuredNote, Recommendations}

var (
	ErrNotConfigured   = errors.New("analysis: llm gateway not configured")
	ErrEmptyCompletion = errors.New("analysis: empty completion")
	ErrUnknownKind     = errors.New("analysis: unknown prompt kind")
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	prompts    config.Prompts
	mock       bool
	maxRetry   time.Duration
	log        *logrus.Entry
}

type Options struct {
	BaseURL  string
	APIKey   string
	Model    string
	Prompts  config.Prompts
	Mock     bool
	Timeout  time.Duration
	MaxRetry time.Duration
}

func New(opts Options, log *logrus.Entry) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetry == 0 {
		opts.MaxRetry = 45 * time.Second
	}
	if opts.Prompts == (config.Prompts{}) {
		opts.Prompts = config.DefaultPrompts()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		prompts:    opts.Prompts,
		mock:       opts.Mock,
		maxRetry:   opts.MaxRetry,
		log:        log.WithField("component", "analysis"),
	}
}

func (c *Client) prompt(kind Kind) (string, error) {
	switch kind {
	case Summary:
		return c.prompts.Summary, nil
	case StructuredNote:
		return c.prompts.StructuredNote, nil
	case Recommendations:
		return c.prompts.Recommendations, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Analyze runs one prompt kind over the transcript. Calls share no state.
func (c *Client) Analyze(ctx context.Context, transcript string, kind Kind) (string, error) {
	prefix, err := c.prompt(kind)
	if err != nil {
		return "", err
	}
	if c.mock {
		return fmt.Sprintf("MOCK %s for %d transcript chars", kind, len(transcript)), nil
	}
	if c.baseURL == "" || c.apiKey == "" {
		return "", ErrNotConfigured
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prefix + transcript},
		},
	}
	data, _ := json.Marshal(reqBody)
	log := c.log.WithField("kind", string(kind))

	var content string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.WithField("error", err.Error()).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		log.WithField("http_status", resp.StatusCode).Debug("llm response received")

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("llm server error %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("llm rejected request %d: %s", resp.StatusCode, errorMessage(body)))
		}
		text, err := contentFromChoices(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		content = text
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	log.WithField("chars", len(content)).Info("analysis completed")
	return content, nil
}

// contentFromChoices reads the OpenAI-style choices[0].message.content.
func contentFromChoices(body []byte) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("llm response is not JSON: %w", err)
	}
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", ErrEmptyCompletion
	}
	c0, _ := choices[0].(map[string]any)
	msg, _ := c0["message"].(map[string]any)
	content, _ := msg["content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
