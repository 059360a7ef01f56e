package pressrelease

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"kjtimes/internal/logger"
)

const httpPrefix = "http"

// FeedSource is an RSS or Atom feed of press releases.
type FeedSource struct {
	Name         string
	URL          string
	OriginPrefix string
}

// FeedItems parses a feed body into releases. Items without a usable link are
// skipped.
func FeedItems(src FeedSource, feed *gofeed.Feed) []Release {
	out := make([]Release, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := itemLink(item)
		if link == "" {
			continue
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		r := Release{
			OriginID: src.OriginPrefix + "_" + itemKey(item, link),
			Source:   src.Name,
			Title:    strings.TrimSpace(item.Title),
			Content:  strings.TrimSpace(content),
			Link:     link,
			Images:   itemImages(item),
		}
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			r.PublishedAt = &t
		}
		out = append(out, r)
	}
	return out
}

func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, httpPrefix) {
		return item.GUID
	}
	return ""
}

// itemKey is a stable per-item id, short enough for origin_id.
func itemKey(item *gofeed.Item, link string) string {
	key := item.GUID
	if key == "" {
		key = link
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func itemImages(item *gofeed.Item) []string {
	images := []string{}
	if item.Image != nil && item.Image.URL != "" {
		images = append(images, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc == nil || !strings.HasPrefix(enc.Type, "image/") || enc.URL == "" {
			continue
		}
		if len(images) > 0 && images[0] == enc.URL {
			continue
		}
		images = append(images, enc.URL)
	}
	return images
}

// CollectFeed fetches src and upserts every item. It returns the number saved.
func (c *Crawler) CollectFeed(ctx context.Context, src FeedSource) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch feed: HTTP %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse feed: %w", err)
	}

	saved := 0
	for _, r := range FeedItems(src, feed) {
		if err := c.store.Upsert(ctx, r); err != nil {
			c.log.Error("Failed to save feed item",
				logger.String("source", src.Name),
				logger.String("origin_id", r.OriginID),
				logger.Error(err),
			)
			continue
		}
		saved++
	}
	return saved, nil
}
