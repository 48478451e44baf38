package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomeshelf/playback/internal/logger"
)

const apiPath = "/api"

// ErrUnauthorized is returned when the backend rejects the file fetch for
// authentication reasons. Fatal: the engine must not retry these.
var ErrUnauthorized = errors.New("file fetch unauthorized")

// FileContent is the fetched byte content of one audio file
type FileContent struct {
	Data      []byte
	MediaType string
	FetchedAt time.Time
}

// Client streams authenticated audio file content from the backend
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logger.Logger
}

// NewClient creates a new file content client
func NewClient(baseURL, token string) *Client {
	log := logger.Get().Logger.With().
		Str("component", "content_client").
		Logger()

	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			// Full-file downloads of long audiobook files can be slow
			Timeout: 5 * time.Minute,
		},
		logger: &logger.Logger{Logger: log},
	}
}

// Fetch downloads the full byte content of one file of a book
func (c *Client) Fetch(ctx context.Context, bookID, fileID string) (*FileContent, error) {
	return c.fetch(ctx, bookID, fileID, "")
}

// FetchRange downloads a byte range of one file. Range support on the backend
// is best effort; a 200 response with the full body is accepted too.
func (c *Client) FetchRange(ctx context.Context, bookID, fileID string, from, to int64) (*FileContent, error) {
	return c.fetch(ctx, bookID, fileID, fmt.Sprintf("bytes=%d-%d", from, to))
}

func (c *Client) fetch(ctx context.Context, bookID, fileID, byteRange string) (*FileContent, error) {
	endpoint := fmt.Sprintf("/audiobooks/%s/files/%s", bookID, fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("File fetch failed", map[string]interface{}{
			"book_id": bookID,
			"file_id": fileID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("File fetch rejected", map[string]interface{}{
			"book_id": bookID,
			"file_id": fileID,
			"status":  resp.StatusCode,
		})
		return nil, fmt.Errorf("fetch %s/%s: %w", bookID, fileID, ErrUnauthorized)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Unexpected status code", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": string(body),
		})
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}

	c.logger.Debug("Fetched file content", map[string]interface{}{
		"book_id":  bookID,
		"file_id":  fileID,
		"bytes":    len(data),
		"duration": time.Since(start).String(),
	})

	return &FileContent{
		Data:      data,
		MediaType: mediaType,
		FetchedAt: time.Now(),
	}, nil
}
