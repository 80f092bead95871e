package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no API key is set and mock mode is off.
var ErrNotConfigured = errors.New("transcription: OPENAI_API_KEY not set")

const mockTranscript = "MOCK TRANSCRIPT: Host and participant reviewed progress and agreed on next steps."

// textKeys are the fields providers have been seen to put the transcript under.
var textKeys = []string{"text", "transcription", "transcript"}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	mock       bool
	maxRetry   time.Duration
	log        *logrus.Entry
}

type Options struct {
	BaseURL  string
	APIKey   string
	Model    string
	Mock     bool
	Timeout  time.Duration
	MaxRetry time.Duration
}

func New(opts Options, log *logrus.Entry) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxRetry == 0 {
		opts.MaxRetry = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		mock:       opts.Mock,
		maxRetry:   opts.MaxRetry,
		log:        log.WithField("component", "transcription"),
	}
}

// Transcribe uploads the audio file and returns its transcript text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.mock {
		return mockTranscript, nil
	}
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, contentType, err := c.buildForm(audioPath)
	if err != nil {
		return "", err
	}

	start := time.Now()
	raw, err := c.post(ctx, body, contentType)
	if err != nil {
		return "", err
	}
	text := Normalize(raw)
	c.log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"chars":       len(text),
	}).Info("transcription completed")
	return text, nil
}

func (c *Client) buildForm(audioPath string) ([]byte, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("model", c.model)
	_ = w.WriteField("response_format", "text")
	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

// post retries 5xx and transport errors; 4xx fails immediately.
func (c *Client) post(ctx context.Context, body []byte, contentType string) ([]byte, error) {
	endpoint := c.baseURL + "/audio/transcriptions"
	var out []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.WithField("error", err.Error()).Warn("transcription request failed")
			return err
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("transcription server error %d: %s", resp.StatusCode, snippet(data))
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("transcription rejected %d: %s", resp.StatusCode, snippet(data)))
		}
		out = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// Normalize turns any response body into transcript text: a plain body or
// JSON string as-is, a JSON object via its text field, anything else as
// compact JSON.
func Normalize(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range textKeys {
			if s, ok := t[k].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	case float64, bool:
		// a bare scalar body is the transcript itself, e.g. "42"
		return string(trimmed)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
