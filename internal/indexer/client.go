// Package indexer queries the document indexer that produces answers for
// pending jobs.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/answer-relay/internal/domain"
)

const (
	queryPath       = "/query"
	maxErrorBodyLen = 512
)

// ErrEmptyQuestion is returned before any request is made for a blank question
var ErrEmptyQuestion = errors.New("question is empty")

// QueryError is the error message the indexer reported for a question
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return "indexer rejected query: " + e.Message
}

// Answer is the indexer result for one question
type Answer struct {
	Output string
	Links  []string
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Result *struct {
		Output json.RawMessage `json:"output"`
		Links  []string        `json:"links"`
	} `json:"result"`
	Error *string `json:"error"`
}

// Client calls the indexer HTTP API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an indexer client. A zero timeout leaves the request
// bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Query sends the question to the indexer. Transport failures and 5xx
// responses are returned as domain.RetryableError.
func (c *Client) Query(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	body, err := json.Marshal(queryRequest{Query: question})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("error calling indexer: %w", err))
	}
	defer resp.Body.Close()

	c.logger.Debug("Indexer responded",
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, domain.NewRetryableError(fmt.Errorf("indexer returned %s: %s", resp.Status, readSnippet(resp.Body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned %s: %s", resp.Status, readSnippet(resp.Body))
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if decoded.Error != nil {
		return nil, &QueryError{Message: *decoded.Error}
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("indexer response has neither result nor error")
	}

	links := decoded.Result.Links
	if links == nil {
		links = []string{}
	}

	return &Answer{
		Output: outputText(decoded.Result.Output),
		Links:  links,
	}, nil
}

// outputText returns a JSON string output unquoted and any other JSON value
// verbatim.
func outputText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyLen))
	return strings.TrimSpace(string(b))
}
