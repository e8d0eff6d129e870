// Package examapi is the HTTP client for the remote exam service.
package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/validator"
)

const (
	startPath  = "/api/exam/start"
	submitPath = "/api/exam/submit"

	maxBodyBytes = 1 << 20
)

// Client talks to the exam service's start and submit endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client. A zero timeout leaves remote calls unbounded.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "exam_api").Logger(),
	}
}

// Start opens a new exam session for the holder of credential.
func (c *Client) Start(ctx context.Context, credential string) (*model.StartExamResponse, error) {
	var out model.StartExamResponse
	if err := c.do(ctx, http.MethodPost, startPath, credential, nil, &out); err != nil {
		return nil, fmt.Errorf("start exam: %w", err)
	}
	return &out, nil
}

// Submit sends the collected answers and returns the service's score.
func (c *Client) Submit(ctx context.Context, credential string, req *model.SubmitExamRequest) (*model.SubmitExamResponse, error) {
	var out model.SubmitExamResponse
	if err := c.do(ctx, http.MethodPost, submitPath, credential, req, &out); err != nil {
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, credential string, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	log := c.log.With().Str("request_id", reqID).Str("path", path).Logger()
	started := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Exam service request failed")
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("Exam service responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &APIError{StatusCode: resp.StatusCode, Message: eb.text()}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if fields := validator.Struct(dst); fields != nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, describe(fields))
	}
	return nil
}

// describe flattens validator field errors into a stable one-line message.
func describe(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fields[k]
	}
	return strings.Join(parts, "; ")
}
