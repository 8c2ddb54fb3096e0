package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/painscout/internal/content"
	"github.com/TobiSchelling/painscout/internal/metrics"
	"github.com/TobiSchelling/painscout/internal/retry"
)

// DefaultBaseURL is the public Arctic Shift archive.
const DefaultBaseURL = "https://arctic-shift.photon-reddit.com"

// ClientConfig configures the HTTP archive client.
type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Retry             retry.Policy
	Timeout           time.Duration
	UserAgent         string
}

// Client searches an Arctic-Shift-compatible JSON archive.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *RateLimiter
	policy    retry.Policy
}

// NewClient creates an archive client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "painscout/1.0 (problem research)"
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy
	}
	policy.Retryable = func(err error) bool { return errors.Is(err, ErrTransient) }

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   NewRateLimiter(cfg.RequestsPerSecond),
		policy:    policy,
	}
}

type archivePost struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Selftext    string      `json:"selftext"`
	Body        string      `json:"body"`
	Subreddit   string      `json:"subreddit"`
	Score       int         `json:"score"`
	NumComments int         `json:"num_comments"`
	CreatedUTC  json.Number `json:"created_utc"`
	Permalink   string      `json:"permalink"`
}

// SearchPosts returns one page of posts, newest first.
func (c *Client) SearchPosts(ctx context.Context, q Query) ([]content.Item, error) {
	raw, err := c.search(ctx, "/api/posts/search", q)
	if err != nil {
		return nil, err
	}
	items := make([]content.Item, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" {
			continue
		}
		items = append(items, normalize(p, content.KindPost))
	}
	return items, nil
}

// SearchComments returns one page of comments, newest first.
func (c *Client) SearchComments(ctx context.Context, q Query) ([]content.Item, error) {
	raw, err := c.search(ctx, "/api/comments/search", q)
	if err != nil {
		return nil, err
	}
	items := make([]content.Item, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" {
			continue
		}
		items = append(items, normalize(p, content.KindComment))
	}
	return items, nil
}

func (c *Client) search(ctx context.Context, path string, q Query) ([]archivePost, error) {
	params := url.Values{
		"subreddit": {q.Container},
		"limit":     {strconv.Itoa(q.PageSize())},
		"sort":      {"desc"},
	}
	if !q.After.IsZero() {
		params.Set("after", strconv.FormatInt(q.After.Unix(), 10))
	}
	if !q.Before.IsZero() {
		params.Set("before", strconv.FormatInt(q.Before.Unix(), 10))
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	var posts []archivePost
	err := retry.Do(ctx, c.policy, "archive "+path, func(ctx context.Context) error {
		var err error
		posts, err = c.get(ctx, endpoint)
		switch {
		case err == nil:
			metrics.ArchiveRequests.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrTransient):
			metrics.ArchiveRequests.WithLabelValues("transient").Inc()
		default:
			metrics.ArchiveRequests.WithLabelValues("error").Inc()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s in r/%s: %w", path, q.Container, err)
	}
	return posts, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]archivePost, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			se.retryAfter = time.Duration(secs) * time.Second
		}
		if resp.StatusCode == http.StatusTooManyRequests && se.retryAfter > 0 {
			c.limiter.RecordRateLimitError(se.retryAfter)
		}
		return nil, se
	}

	var result struct {
		Data  []archivePost `json:"data"`
		Error string        `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTransient, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("archive error: %s", result.Error)
	}
	return result.Data, nil
}

func normalize(p archivePost, kind content.Kind) content.Item {
	body := p.Selftext
	if kind == content.KindComment {
		body = p.Body
	}
	permalink := p.Permalink
	if strings.HasPrefix(permalink, "/") {
		permalink = "https://www.reddit.com" + permalink
	}
	item := content.Item{
		ID:           p.ID,
		Kind:         kind,
		Body:         strings.TrimSpace(body),
		Container:    p.Subreddit,
		Score:        p.Score,
		CommentCount: p.NumComments,
		CreatedAt:    parseUnix(p.CreatedUTC),
		Permalink:    permalink,
	}
	if kind == content.KindPost {
		item.Title = strings.TrimSpace(p.Title)
	}
	return item
}

func parseUnix(n json.Number) time.Time {
	f, err := n.Float64()
	if err != nil || f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
