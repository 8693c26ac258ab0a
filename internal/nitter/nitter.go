// Package nitter fetches X/Twitter timeline pages through public Nitter
// mirrors and extracts the usernames of recent posters.
package nitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// DefaultMirrors is the mirror list used when the configuration does not
// override it. Mirrors come and go; the order is best-first.
var DefaultMirrors = []string{
	"https://nitter.net",
	"https://nitter.poast.org",
	"https://nitter.privacydev.net",
	"https://nitter.l5.ca",
}

const mirrorBackoff = 1 * time.Second

// Client fetches timeline pages, trying each mirror in order until one
// answers with 200.
type Client struct {
	client  *http.Client
	mirrors []string
	log     *logger.Logger

	// OnMirrorFailure is invoked once per mirror that fails, before the
	// next one is tried. Used for metrics.
	OnMirrorFailure func(mirror string)
}

// NewClient constructs a client over the given mirror list.
func NewClient(client *http.Client, mirrors []string, log *logger.Logger) (*Client, error) {
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	cleaned := make([]string, 0, len(mirrors))
	for _, mirror := range mirrors {
		mirror = strings.TrimRight(strings.TrimSpace(mirror), "/")
		if mirror == "" {
			continue
		}
		cleaned = append(cleaned, mirror)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("at least one mirror required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("nitter")
	}
	return &Client{client: client, mirrors: cleaned, log: log}, nil
}

// Mirrors returns the mirror list in failover order.
func (c *Client) Mirrors() []string {
	return append([]string(nil), c.mirrors...)
}

// FetchPage returns the timeline HTML for a handle from the first mirror
// that responds with 200. Mirrors are separated by a short backoff so a
// flapping mirror does not turn the loop into a hammer.
func (c *Client) FetchPage(ctx context.Context, handle string) (string, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return "", fmt.Errorf("handle required")
	}

	var lastErr error
	for i, mirror := range c.mirrors {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(mirrorBackoff):
			}
		}

		pageURL := mirror + "/" + handle
		body, err := c.fetch(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		c.log.WithField("url", pageURL).WithError(err).Warn("mirror fetch failed")
		if c.OnMirrorFailure != nil {
			c.OnMirrorFailure(mirror)
		}
	}
	return "", fmt.Errorf("all mirrors failed for @%s: %w", handle, lastErr)
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// Probe fetches a handle's page and classifies it. Used when a watch is
// registered, so a typo fails fast instead of silently never matching.
func (c *Client) Probe(ctx context.Context, handle string) (watch.PageType, error) {
	html, err := c.FetchPage(ctx, handle)
	if err != nil {
		return watch.PageTypeUnknown, err
	}
	return DetectPageType(html), nil
}

// DetectPageType reports whether the HTML is a community page or a regular
// user timeline.
func DetectPageType(html string) watch.PageType {
	if strings.Contains(html, "Community") {
		return watch.PageTypeCommunity
	}
	return watch.PageTypeUser
}

// ParseTimeline extracts the poster usernames from up to limit timeline
// items. Usernames are lower-cased and de-duplicated; order follows the
// page.
func ParseTimeline(html string, limit int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse timeline: %w", err)
	}

	seen := make(map[string]struct{})
	var posters []string
	doc.Find("div.timeline-item").EachWithBreak(func(i int, item *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		name := item.Find("a.username bdi").First().Text()
		name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
		if name == "" {
			return true
		}
		if _, dup := seen[name]; dup {
			return true
		}
		seen[name] = struct{}{}
		posters = append(posters, name)
		return true
	})
	return posters, nil
}
