package library

import (
	"context"
	"fmt"
	"net/http"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/tomeshelf/playback/internal/cache"
	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/models"
)

// ManifestCacheTTL bounds how long a fetched manifest is reused. Manifests
// change only when the library is re-scanned, so a generous TTL is fine.
const ManifestCacheTTL = 10 * time.Minute

const audiobookQuery = `
	query Audiobook($id: String!) {
		audiobook(id: $id) {
			id
			title
			files {
				id
				index
				name
				size
				mediaType
				duration
				chapters {
					id
					title
					start
					end
				}
			}
		}
	}`

// Client fetches audiobook manifests (ordered file lists with chapters) from
// the platform's GraphQL API.
type Client struct {
	gqlClient *graphql.Client
	cache     cache.Cache[string, *models.Audiobook]
	logger    *logger.Logger
}

// headerAddingTransport injects the bearer token into every request
type headerAddingTransport struct {
	token string
	rt    http.RoundTripper
}

func (t *headerAddingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
	return t.rt.RoundTrip(req)
}

// NewClient creates a new library manifest client
func NewClient(endpoint, token string) *Client {
	log := logger.Get().Logger.With().
		Str("component", "library_client").
		Logger()
	childLogger := &logger.Logger{Logger: log}

	authClient := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &headerAddingTransport{
			token: token,
			rt:    http.DefaultTransport,
		},
	}

	return &Client{
		gqlClient: graphql.NewClient(endpoint, authClient),
		cache: cache.WithTTL[string, *models.Audiobook](
			cache.NewMemoryCache[string, *models.Audiobook](childLogger),
			ManifestCacheTTL,
		),
		logger: childLogger,
	}
}

// GetAudiobook fetches the manifest for one audiobook, from cache when fresh
func (c *Client) GetAudiobook(ctx context.Context, bookID string) (*models.Audiobook, error) {
	if book, ok := c.cache.Get(bookID); ok {
		return book, nil
	}

	var resp struct {
		Audiobook *models.Audiobook `json:"audiobook"`
	}

	err := c.gqlClient.Exec(ctx, audiobookQuery, &resp, map[string]interface{}{
		"id": bookID,
	})
	if err != nil {
		c.logger.Error("Manifest fetch failed", map[string]interface{}{
			"book_id": bookID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to fetch audiobook manifest: %w", err)
	}
	if resp.Audiobook == nil {
		return nil, fmt.Errorf("audiobook not found: %s", bookID)
	}

	book := resp.Audiobook
	book.SortFiles()

	c.logger.Debug("Fetched audiobook manifest", map[string]interface{}{
		"book_id": bookID,
		"files":   len(book.Files),
	})

	c.cache.Set(bookID, book, ManifestCacheTTL)
	return book, nil
}

// Invalidate drops the cached manifest for a book, forcing a refetch
func (c *Client) Invalidate(bookID string) {
	c.cache.Delete(bookID)
}
