package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
)

const apiPath = "/api"

// Client talks to the backend progress service. It owns the two write paths
// the engine needs: full position writes and pointer-only writes.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *logger.Logger
}

// NewClient creates a new progress service client
func NewClient(baseURL, token string) *Client {
	log := logger.Get().Logger.With().
		Str("component", "progress_client").
		Logger()

	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: &logger.Logger{Logger: log},
	}
}

// GetProgress fetches the stored progress record for one file of a book.
// A nil record with a nil error means the backend has no record for the file.
func (c *Client) GetProgress(ctx context.Context, bookID, fileID string) (*models.ProgressRecord, error) {
	endpoint := fmt.Sprintf("/audiobooks/%s/progress?fileId=%s", bookID, url.QueryEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Progress fetch failed", map[string]interface{}{
			"book_id": bookID,
			"file_id": fileID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Unexpected status code", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": string(body),
		})
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var record models.ProgressRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if record.FileID == "" {
		record.FileID = fileID
	}

	c.logger.Debug("Fetched progress record", map[string]interface{}{
		"book_id":      bookID,
		"file_id":      fileID,
		"current_time": record.CurrentTime,
		"progress":     record.Progress,
	})
	return &record, nil
}

// GetLastFile returns the book's last-active-file pointer. An empty string
// with a nil error means the book was never opened before.
func (c *Client) GetLastFile(ctx context.Context, bookID string) (string, error) {
	endpoint := fmt.Sprintf("/audiobooks/%s/progress", bookID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var pointer struct {
		LastFileID string `json:"lastFileId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pointer); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return pointer.LastFileID, nil
}

// SaveProgress writes a position record for one file of a book
func (c *Client) SaveProgress(ctx context.Context, bookID string, upd models.ProgressUpdate) error {
	if err := c.post(ctx, bookID, upd); err != nil {
		return err
	}

	c.logger.Debug("Saved progress", map[string]interface{}{
		"book_id":      bookID,
		"file_id":      upd.FileID,
		"current_time": upd.CurrentTime,
	})
	return nil
}

// SaveLastFile moves the last-active-file pointer without touching the file's
// own progress record. Used on every file switch, including switches to files
// that were never played.
func (c *Client) SaveLastFile(ctx context.Context, bookID, fileID string) error {
	upd := models.PointerUpdate{
		FileID:               fileID,
		UpdateLastFileIDOnly: true,
	}
	if err := c.post(ctx, bookID, upd); err != nil {
		return err
	}

	c.logger.Debug("Updated last-active-file pointer", map[string]interface{}{
		"book_id": bookID,
		"file_id": fileID,
	})
	return nil
}

func (c *Client) post(ctx context.Context, bookID string, payload interface{}) error {
	endpoint := fmt.Sprintf("/audiobooks/%s/progress", bookID)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("Unexpected status code", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": string(body),
		})
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
