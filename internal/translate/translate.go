// Package translate is the HTTP client for the remote translation and
// speech backend. One request carries one utterance; the response may
// include synthesized audio.
package translate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultSourceLanguage is the caption language.
const DefaultSourceLanguage = "en"

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("translate: unexpected status")

// Request is the backend request body.
type Request struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	VoiceID        string `json:"voice_id,omitempty"`
}

// Response is the backend response body.
type Response struct {
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	Confidence     float64   `json:"confidence"`
	AudioData      AudioData `json:"audio_data,omitempty"`
}

// Translator translates one utterance.
type Translator interface {
	Translate(ctx context.Context, req Request) (*Response, error)
}

// Fallback is the degraded response shown when the backend failed.
func Fallback(text string) *Response {
	return &Response{
		OriginalText:   text,
		TranslatedText: fmt.Sprintf("[Translation Error: %s]", text),
	}
}

// AudioData accepts audio either as a base64 string or as a JSON array of
// byte values, and always marshals to base64.
type AudioData []byte

func (a *AudioData) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*a = nil
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == "" {
			*a = nil
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("translate: audio base64: %w", err)
		}
		*a = decoded
		return nil
	case trimmed[0] == '[':
		var ints []int
		if err := json.Unmarshal(trimmed, &ints); err != nil {
			return fmt.Errorf("translate: audio array: %w", err)
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("translate: audio byte %d out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		*a = out
		return nil
	default:
		return fmt.Errorf("translate: audio: unsupported JSON %q", trimmed[:1])
	}
}

func (a AudioData) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(a))
}

// Client calls the backend over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithAPIKey sends "Authorization: Bearer <key>".
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// WithTimeout sets the per-request timeout. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.client.Timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client posting to endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("translate: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Translate posts req and decodes the response. Non-2xx statuses return an
// error wrapping ErrStatus. No retries: a failed utterance stays failed.
func (c *Client) Translate(ctx context.Context, req Request) (*Response, error) {
	if req.SourceLanguage == "" {
		req.SourceLanguage = DefaultSourceLanguage
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("translate: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("translate: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("translate: do: %w", err)
	}
	defer resp.Body.Close()

	// Audio can be large, text never is.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("translate: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, snippet)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("translate: decode: %w", err)
	}
	if out.OriginalText == "" {
		out.OriginalText = req.Text
	}

	c.logger.Debug("translate: done",
		"target", req.TargetLanguage, "chars", len(req.Text),
		"confidence", out.Confidence, "audio_bytes", len(out.AudioData))
	return &out, nil
}
