// Package openai is a focused client for the images-edit endpoint.
// One call, one attempt; retry policy belongs to callers.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"log/slog"

	"github.com/m3rciful/editbot/bot/imaging"
	"github.com/m3rciful/editbot/core/logger"
)

var (
	// ErrTimeout indicates the whole request exceeded the configured bound.
	ErrTimeout = errors.New("openai: request timed out")
	// ErrMalformedResponse indicates a success status with an unparseable body.
	ErrMalformedResponse = errors.New("openai: malformed response body")
	// ErrEmptyResult indicates a success response carrying no image.
	ErrEmptyResult = errors.New("openai: response contains no image")
)

// RejectedError carries the upstream error message for HTTP status >= 400.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("openai: request rejected (status %d): %s", e.Status, e.Message)
}

// Result is the outcome of a successful edit: exactly one of URL or Data is set.
type Result struct {
	URL  string
	Data []byte
}

// Request describes one edit submission.
type Request struct {
	Image       *imaging.NormalizedImage
	Instruction string
	Size        int
}

// editResponse is the minimal response shape of the images-edit endpoint.
type editResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client submits image edits to an OpenAI-compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds the whole request including server processing time.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a Client for the given endpoint and credentials.
func NewClient(baseURL, apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: 180 * time.Second,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(c.model) == "" {
		c.model = "gpt-image-1"
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// SubmitEdit posts the image and instruction as one multipart request and
// parses the first result entry. A single attempt is made.
func (c *Client) SubmitEdit(ctx context.Context, req Request) (*Result, error) {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, errors.New("openai: empty image payload")
	}
	size := req.Size
	if size <= 0 {
		size = req.Image.Size
	}

	body, contentType, err := buildForm(c.model, req.Instruction, size, req.Image)
	if err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			logger.Warn(ctx, "oai", "edit.timeout",
				slog.String("model", c.model),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	result, err := parseEditResponse(resp.StatusCode, raw)
	logger.Event(ctx, "oai", statusLevel(err), "edit.finish",
		slog.String("status", logger.Status(err)),
		slog.String("model", c.model),
		slog.Int("http_code", resp.StatusCode),
		slog.String("result", resultKind(result)),
		slog.Duration("duration", logger.Took(start)),
	)
	return result, err
}

func buildForm(model, instruction string, size int, img *imaging.NormalizedImage) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	fields := map[string]string{
		"model":  model,
		"prompt": instruction,
		"size":   fmt.Sprintf("%dx%d", size, size),
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="input.png"`)
	header.Set("Content-Type", img.MIME)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return body, form.FormDataContentType(), nil
}

func parseEditResponse(status int, raw []byte) (*Result, error) {
	var parsed editResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if status >= 400 {
		message := strings.TrimSpace(string(raw))
		if jsonErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return nil, &RejectedError{Status: status, Message: message}
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, jsonErr)
	}
	if len(parsed.Data) == 0 {
		return nil, ErrEmptyResult
	}

	first := parsed.Data[0]
	switch {
	case first.URL != "":
		return &Result{URL: first.URL}, nil
	case first.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid b64_json: %v", ErrMalformedResponse, err)
		}
		return &Result{Data: data}, nil
	}
	return nil, ErrEmptyResult
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func statusLevel(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func resultKind(r *Result) string {
	switch {
	case r == nil:
		return ""
	case r.URL != "":
		return "url"
	default:
		return "bytes"
	}
}
