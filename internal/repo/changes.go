package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/incidentstack/faultline/internal/cache"
)

// ChangesClient wraps the code-hosting API used to fetch recent change
// summaries for a service. Results are cached; failures are returned to the
// caller, which degrades to no change evidence.
type ChangesClient struct {
	baseURL     string
	changesPath string
	token       string
	httpClient  *http.Client
	cache       cache.Provider
	ttl         time.Duration
}

// NewChangesClient constructs a client targeting the configured code-hosting
// endpoint. cacheProvider may be nil.
func NewChangesClient(baseURL, changesPath, token string, timeout time.Duration, cacheProvider cache.Provider, ttl time.Duration) *ChangesClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChangesClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		changesPath: changesPath,
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       cacheProvider,
		ttl:         ttl,
	}
}

// RecentChanges returns human-readable summaries of recent commits touching
// the service, newest first as returned by the API.
func (c *ChangesClient) RecentChanges(ctx context.Context, service string) ([]string, error) {
	if c == nil || c.baseURL == "" {
		return nil, nil
	}

	cacheKey := "changes:" + service
	if c.ttl > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []string
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	endpoint, err := c.changesURL(service)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recent changes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code-hosting API returned %s", resp.Status)
	}

	var response struct {
		Changes []struct {
			SHA         string    `json:"sha"`
			Author      string    `json:"author"`
			Message     string    `json:"message"`
			CommittedAt time.Time `json:"committed_at"`
		} `json:"changes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode changes response: %w", err)
	}

	summaries := make([]string, 0, len(response.Changes))
	for _, change := range response.Changes {
		summaries = append(summaries, formatChange(change.SHA, change.Author, change.Message, change.CommittedAt))
	}

	if c.ttl > 0 && len(summaries) > 0 {
		if payload, err := json.Marshal(summaries); err == nil {
			_ = c.cache.Set(ctx, cacheKey, payload, c.ttl)
		}
	}

	return summaries, nil
}

func (c *ChangesClient) changesURL(service string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	u.Path = path.Join(u.Path, "/"+strings.TrimLeft(c.changesPath, "/"))
	q := u.Query()
	q.Set("service", service)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatChange(sha, author, message string, committedAt time.Time) string {
	short := sha
	if len(short) > 7 {
		short = short[:7]
	}
	firstLine := message
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	when := "unknown time"
	if !committedAt.IsZero() {
		when = committedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s %s by %s at %s", short, strings.TrimSpace(firstLine), author, when)
}
