package pressrelease

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"kjtimes/internal/logger"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultRowLimit  = 5
	defaultDelay     = time.Second
)

var seqPattern = regexp.MustCompile(`seq=(\d+)`)

// BoardSource describes a government press board: a list page of rows linking
// to detail pages addressed by a numeric seq.
type BoardSource struct {
	Name          string
	ListURL       string
	DetailURLBase string
	OriginPrefix  string
	Limit         int
}

// GwangjuCityHall is the Gwangju Metropolitan City press release board.
var GwangjuCityHall = BoardSource{
	Name:          "광주광역시청",
	ListURL:       "https://www.gwangju.go.kr/boardList.do?pageId=www789&boardId=BD_0000000027",
	DetailURLBase: "https://www.gwangju.go.kr/boardView.do?pageId=www789&boardId=BD_0000000027&seq=",
	OriginPrefix:  "GWANGJU",
	Limit:         defaultRowLimit,
}

// ListEntry is one row of a board list page.
type ListEntry struct {
	Seq   string
	Title string
	Date  string
}

// Upserter stores collected releases.
type Upserter interface {
	Upsert(ctx context.Context, r Release) error
}

// Crawler collects releases from board sources.
type Crawler struct {
	client   *http.Client
	store    Upserter
	log      logger.Logger
	delay    time.Duration
	sleep    func(context.Context, time.Duration) error
	location *time.Location
}

// NewCrawler returns a Crawler that waits one second between detail pages.
func NewCrawler(store Upserter, log logger.Logger) *Crawler {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return &Crawler{
		client:   &http.Client{Timeout: 30 * time.Second},
		store:    store,
		log:      log,
		delay:    defaultDelay,
		sleep:    sleepContext,
		location: loc,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Crawl fetches the list page of src, then each of the top rows, and upserts
// every release it could read. Failures on a single row are logged and
// skipped.
func (c *Crawler) Crawl(ctx context.Context, src BoardSource) (int, error) {
	log := c.log.With(logger.String("source", src.Name))

	body, err := c.fetch(ctx, src.ListURL)
	if err != nil {
		return 0, fmt.Errorf("fetch list: %w", err)
	}
	limit := src.Limit
	if limit <= 0 {
		limit = defaultRowLimit
	}
	entries, err := ParseBoardList(strings.NewReader(body), limit)
	if err != nil {
		return 0, fmt.Errorf("parse list: %w", err)
	}
	log.Info("Board list fetched", logger.Int("rows", len(entries)))

	saved := 0
	for i, entry := range entries {
		if i > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return saved, err
			}
		}

		detailURL := src.DetailURLBase + entry.Seq
		page, err := c.fetch(ctx, detailURL)
		if err != nil {
			log.Warn("Detail fetch failed", logger.String("seq", entry.Seq), logger.Error(err))
			continue
		}
		content, images, err := ExtractDetail(page, detailURL)
		if err != nil {
			log.Warn("Detail parse failed", logger.String("seq", entry.Seq), logger.Error(err))
			continue
		}

		r := Release{
			OriginID: src.OriginPrefix + "_" + entry.Seq,
			Source:   src.Name,
			Title:    entry.Title,
			Content:  content,
			Link:     detailURL,
			Images:   images,
		}
		if t, ok := ParseBoardDate(entry.Date, c.location); ok {
			r.PublishedAt = &t
		}
		if err := c.store.Upsert(ctx, r); err != nil {
			log.Error("Failed to save press release", logger.String("origin_id", r.OriginID), logger.Error(err))
			continue
		}
		saved++
	}
	return saved, nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseBoardList reads up to limit rows from a board list page. Rows without
// a subject link or a seq parameter are skipped.
func ParseBoardList(r io.Reader, limit int) ([]ListEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	entries := []ListEntry{}
	doc.Find(".board_list_body .body_row").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		link := row.Find(".subject a").First()
		if link.Length() == 0 {
			return true
		}
		href, _ := link.Attr("href")
		m := seqPattern.FindStringSubmatch(href)
		if m == nil {
			return true
		}

		date := row.Find(".date")
		date.Find(".blind").Remove()

		entries = append(entries, ListEntry{
			Seq:   m[1],
			Title: strings.TrimSpace(link.Text()),
			Date:  strings.TrimSpace(date.Text()),
		})
		return true
	})
	return entries, nil
}

// ExtractDetail returns the body HTML of a detail page and the absolute URLs
// of its images. When neither known content container is present the page
// goes through readability instead.
func ExtractDetail(page, pageURL string) (string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", nil, err
	}

	container := doc.Find(".board_view_con").First()
	if container.Length() == 0 {
		container = doc.Find(".view_cont").First()
	}

	if container.Length() == 0 {
		article, err := readability.FromReader(strings.NewReader(page), base)
		if err != nil {
			return "", nil, fmt.Errorf("readability: %w", err)
		}
		content := strings.TrimSpace(article.Content)
		fallback, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return content, []string{}, nil
		}
		return content, imageURLs(fallback.Selection, base), nil
	}

	container.Find("script, style").Remove()
	content, err := container.Html()
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(content), imageURLs(container, base), nil
}

func imageURLs(sel *goquery.Selection, base *url.URL) []string {
	images := []string{}
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		images = append(images, base.ResolveReference(ref).String())
	})
	return images
}

var boardDateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "2006-01-02 15:04", "2006.01.02 15:04"}

// ParseBoardDate parses the date column of a board row in loc.
func ParseBoardDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	for _, layout := range boardDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
