package app

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kjtimes/internal/article"
	"kjtimes/internal/cache"
	"kjtimes/internal/metrics"
)

const (
	desktopUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type fakeArticles struct {
	mu sync.Mutex

	latest     []article.Summary
	popular    []article.Summary
	byCategory map[string][]article.Summary
	byID       map[string]*article.Article
	bySlug     map[string]*article.Article
	tags       []string
	results    []article.Summary
	sitemap    []article.SitemapEntry
	latestErr  error

	latestCalls int
	views       []string
	categories  []string
	search      []article.SearchParams
	newsSince   time.Time
}

func (f *fakeArticles) Latest(_ context.Context, limit int) ([]article.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	return f.latest, f.latestErr
}

func (f *fakeArticles) Popular(context.Context, int) ([]article.Summary, error) {
	return f.popular, nil
}

func (f *fakeArticles) ByCategory(_ context.Context, slug string, includeShared bool, limit int) ([]article.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = append(f.categories, slug)
	return f.byCategory[slug], nil
}

func (f *fakeArticles) PublicByID(_ context.Context, id string) (*article.Article, error) {
	if a, ok := f.byID[id]; ok {
		return a, nil
	}
	return nil, article.ErrNotFound
}

func (f *fakeArticles) PublicBySlug(_ context.Context, slug string) (*article.Article, error) {
	if a, ok := f.bySlug[slug]; ok {
		return a, nil
	}
	return nil, article.ErrNotFound
}

func (f *fakeArticles) Related(context.Context, string, string, int) ([]article.Summary, error) {
	return f.popular, nil
}

func (f *fakeArticles) ByTag(context.Context, string, string, int) ([]article.Summary, error) {
	return nil, errors.New("tag lookup down")
}

func (f *fakeArticles) ByAuthor(context.Context, string, string, int) ([]article.Summary, error) {
	return nil, nil
}

func (f *fakeArticles) TagsFor(context.Context, string, int) ([]string, error) {
	return f.tags, nil
}

func (f *fakeArticles) Search(_ context.Context, p article.SearchParams) ([]article.Summary, error) {
	f.search = append(f.search, p)
	return f.results, nil
}

func (f *fakeArticles) IncrementViews(_ context.Context, id string) error {
	f.views = append(f.views, id)
	return nil
}

func (f *fakeArticles) SitemapEntries(context.Context, int) ([]article.SitemapEntry, error) {
	return f.sitemap, nil
}

func (f *fakeArticles) NewsSitemapEntries(_ context.Context, since time.Time) ([]article.SitemapEntry, error) {
	f.newsSince = since
	return f.sitemap, nil
}

func summary(id, title string, views int) article.Summary {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return article.Summary{ID: id, Title: title, Slug: "slug-" + id, Views: views, PublishedAt: &at, CreatedAt: at}
}

func newTestServer(t *testing.T, cfg Config, store *fakeArticles, deps Deps) *Server {
	t.Helper()
	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://kjtimes.co.kr"
	}
	deps.Articles = store
	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return srv
}

func get(t *testing.T, h http.Handler, path, ua string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", ua)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHomeRendersAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(cache.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	var latest []article.Summary
	for i := 0; i < 14; i++ {
		latest = append(latest, summary(string(rune('a'+i)), "기사 "+string(rune('A'+i)), i))
	}
	store := &fakeArticles{
		latest: latest,
		byCategory: map[string][]article.Summary{
			"politics": {summary("p1", "정치 기사", 3)},
		},
	}
	m := metrics.New()
	srv := newTestServer(t, Config{}, store, Deps{Cache: c, Metrics: m})

	rec := get(t, srv, "/", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "기사 A")
	assert.Contains(t, body, `href="/politics">정치</a></h2>`)
	assert.NotContains(t, body, `href="/economy">경제</a></h2>`)
	assert.True(t, mr.Exists("kjtimes:"+homeCacheKey))

	rec = get(t, srv, "/", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.latestCalls)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /{$}", "200")), 0)
}

func TestBuildHomeSlices(t *testing.T) {
	var latest []article.Summary
	for i := 0; i < 14; i++ {
		latest = append(latest, summary(string(rune('a'+i)), "t", i))
	}
	srv := newTestServer(t, Config{}, &fakeArticles{latest: latest}, Deps{})

	view, err := srv.buildHome(context.Background())
	require.NoError(t, err)
	assert.Len(t, view.Headline, 3)
	assert.Len(t, view.Main, 9)
	require.Len(t, view.Popular, 5)
	assert.Equal(t, 13, view.Popular[0].Views)
	assert.Empty(t, view.Sections)
}

func TestHomeEmptyState(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{})
	rec := get(t, srv, "/", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "아직 게시된 기사가 없습니다")
}

func TestHomeStoreFailure(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{latestErr: errors.New("db down")}, Deps{})
	rec := get(t, srv, "/", desktopUA)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCategoryPages(t *testing.T) {
	store := &fakeArticles{byCategory: map[string][]article.Summary{
		"economy":                  {summary("e1", "경제 기사", 1), summary("e2", "조회 많은 경제 기사", 9)},
		article.SpecialEditionSlug: {summary("s1", "특별호 기사", 0)},
	}}
	srv := newTestServer(t, Config{}, store, Deps{})

	rec := get(t, srv, "/economy", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "경제 기사")

	rec = get(t, srv, "/special-edition", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/share/slug-s1"`)

	rec = get(t, srv, "/weather", desktopUA)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArticlePage(t *testing.T) {
	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &article.Article{
		ID:           "a1",
		Title:        "함평 나비축제 개막",
		Slug:         "fest-250301-001",
		Content:      `<p style="color:red">본문</p><script>alert(1)</script><a href="https://example.com">외부</a>`,
		CategoryID:   "c1",
		CategoryName: "문화",
		CategorySlug: "culture",
		Status:       article.StatusPublished,
		PublishedAt:  &published,
		UpdatedAt:    published,
	}
	store := &fakeArticles{byID: map[string]*article.Article{"a1": a}, tags: []string{"축제"}}
	m := metrics.New()
	srv := newTestServer(t, Config{}, store, Deps{Metrics: m})

	rec := get(t, srv, "/article/a1", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"@type":"NewsArticle"`)
	assert.Contains(t, body, `"name":"편집국"`)
	assert.Contains(t, body, "https://kjtimes.co.kr/share/fest-250301-001")
	assert.Contains(t, body, `target="_blank"`)
	assert.Contains(t, body, "#축제")
	assert.NotContains(t, body, "alert(1)")
	assert.NotContains(t, body, "color:red")
	assert.NotContains(t, body, "share-button")
	assert.Equal(t, []string{"a1"}, store.views)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ArticleViews), 0)

	rec = get(t, srv, "/article/a1", mobileUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "share-button")

	rec = get(t, srv, "/article/missing", desktopUA)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSharePageSpecialEdition(t *testing.T) {
	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &article.Article{
		ID:           "s1",
		Title:        "창간 축사",
		Slug:         "special-1",
		Content:      "<p>" + strings.Repeat("단어 ", 300) + "</p>",
		CategoryName: "특별호",
		CategorySlug: article.SpecialEditionSlug,
		Status:       article.StatusShared,
		PublishedAt:  &published,
		UpdatedAt:    published.Add(2 * time.Hour),
	}
	cur := summary("s1", "창간 축사", 1)
	cur.Slug = "special-1"
	store := &fakeArticles{
		bySlug: map[string]*article.Article{"special-1": a},
		byCategory: map[string][]article.Summary{
			article.SpecialEditionSlug: {summary("s2", "둘째 기사", 5), cur, summary("s3", "셋째 기사", 9)},
		},
	}
	srv := newTestServer(t, Config{}, store, Deps{})

	rec := get(t, srv, "/share/special-1", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "2분 읽기")
	assert.Contains(t, body, "수정 ")
	assert.Contains(t, body, "현재 기사")
	assert.Contains(t, body, `<a href="/share/slug-s2">둘째 기사</a>`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, specialIssueLockCookie, cookies[0].Name)
	assert.Equal(t, "special-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 12*60*60, cookies[0].MaxAge)
}

func TestFillCirculation(t *testing.T) {
	cur := summary("c", "current", 0)
	cur.Slug = "cur"
	noSlug := summary("n", "no slug", 100)
	noSlug.Slug = ""
	related := []article.Summary{noSlug, summary("1", "one", 1), cur}
	for i := 2; i <= 8; i++ {
		related = append(related, summary(string(rune('0'+i)), "n", i))
	}

	var view shareView
	fillCirculation(&view, "cur", related)

	require.NotNil(t, view.Current)
	assert.Equal(t, "c", view.Current.ID)
	require.NotNil(t, view.Next)
	assert.Equal(t, "1", view.Next.ID)
	assert.Len(t, view.Latest, 6)
	assert.Len(t, view.Popular, 5)
	assert.Equal(t, "8", view.Popular[0].ID)
	require.Len(t, view.MobileMore, 5)
	assert.Equal(t, "2", view.MobileMore[0].ID)
}

func TestIsUpdated(t *testing.T) {
	published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &article.Article{PublishedAt: &published, UpdatedAt: published.Add(30 * time.Second)}
	assert.False(t, isUpdated(a))
	a.UpdatedAt = published.Add(61 * time.Second)
	assert.True(t, isUpdated(a))
	a.UpdatedAt = time.Time{}
	assert.False(t, isUpdated(a))
}

func TestSpecialIssueLock(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{
		API: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})
	lock := &http.Cookie{Name: specialIssueLockCookie, Value: "special-1"}

	rec := get(t, srv, "/economy?x=1", desktopUA, lock)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/share/special-1", rec.Header().Get("Location"))

	rec = get(t, srv, "/api/admin/me", desktopUA, lock)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = get(t, srv, "/admin", desktopUA, lock)
	assert.NotEqual(t, http.StatusTemporaryRedirect, rec.Code)

	rec = get(t, srv, "/static/site.css", desktopUA, lock)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreviewMode(t *testing.T) {
	srv := newTestServer(t, Config{PreviewMode: true}, &fakeArticles{}, Deps{})

	for _, path := range []string{"/", "/economy", "/about"} {
		rec := get(t, srv, path, desktopUA)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
		assert.Equal(t, "/special-edition", rec.Header().Get("Location"), path)
	}
	rec := get(t, srv, "/special-edition", desktopUA)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearch(t *testing.T) {
	store := &fakeArticles{results: []article.Summary{summary("r1", "광주 버스 노선 개편", 0)}}
	srv := newTestServer(t, Config{}, store, Deps{})

	rec := get(t, srv, "/search?q=%EB%B2%84%EC%8A%A4&category=society&date=week&sort=relevance", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "광주 버스 노선 개편")

	require.Len(t, store.search, 1)
	p := store.search[0]
	assert.Equal(t, "버스", p.Query)
	assert.Equal(t, "society", p.CategorySlug)
	assert.True(t, p.Relevance)
	require.NotNil(t, p.Since)
	assert.Equal(t, time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC), *p.Since)

	long := strings.Repeat("가", 200)
	get(t, srv, "/search?q="+url.QueryEscape(long)+"&category=nope&date=decade", desktopUA)
	require.Len(t, store.search, 2)
	assert.Equal(t, 128, len([]rune(store.search[1].Query)))
	assert.Empty(t, store.search[1].CategorySlug)
	assert.Nil(t, store.search[1].Since)

	rec = get(t, srv, "/search", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.search, 2)
}

func TestSitemaps(t *testing.T) {
	published := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	store := &fakeArticles{sitemap: []article.SitemapEntry{
		{ID: "a1", Title: "광주 & 전남", PublishedAt: published, UpdatedAt: published.Add(time.Hour)},
	}}
	srv := newTestServer(t, Config{}, store, Deps{})

	rec := get(t, srv, "/sitemap.xml", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
	var set struct {
		URLs []struct {
			Loc     string `xml:"loc"`
			LastMod string `xml:"lastmod"`
		} `xml:"url"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.URLs, 1+len(sections)+len(infoPaths)+1)
	last := set.URLs[len(set.URLs)-1]
	assert.Equal(t, "https://kjtimes.co.kr/article/a1", last.Loc)
	assert.Equal(t, "2025-03-09T09:00:00Z", last.LastMod)

	rec = get(t, srv, "/news-sitemap.xml", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `xmlns:news="http://www.google.com/schemas/sitemap-news/0.9"`)
	assert.Contains(t, body, "<news:title>광주 &amp; 전남</news:title>")
	assert.Contains(t, body, "<news:publication_date>2025-03-09T08:00:00Z</news:publication_date>")
	assert.Equal(t, time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), store.newsSince)
}

func TestRobots(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{})
	rec := get(t, srv, "/robots.txt", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://kjtimes.co.kr/news-sitemap.xml")
}

func TestStaticPages(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{})
	for slug, page := range staticPages {
		rec := get(t, srv, "/"+slug, desktopUA)
		require.Equal(t, http.StatusOK, rec.Code, slug)
		assert.Contains(t, rec.Body.String(), page.Title, slug)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{DB: fakePinger{}})
	rec := get(t, srv, "/healthz", desktopUA)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv = newTestServer(t, Config{}, &fakeArticles{}, Deps{DB: fakePinger{err: errors.New("down")}})
	rec = get(t, srv, "/healthz", desktopUA)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{}, &fakeArticles{}, Deps{Metrics: metrics.New()})
	get(t, srv, "/robots.txt", desktopUA)

	rec := get(t, srv, "/metrics", desktopUA)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `kjtimes_http_requests_total{code="200",route="GET /robots.txt"} 1`)
}

func TestDetectDevice(t *testing.T) {
	assert.Equal(t, DeviceMobile, detectDevice(mobileUA))
	assert.Equal(t, DeviceMobile, detectDevice("Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"))
	assert.Equal(t, DeviceDesktop, detectDevice(desktopUA))
	assert.Equal(t, DeviceDesktop, detectDevice(""))
}

func TestResolveSiteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "internal:8080"
	req.Header.Set("X-Forwarded-Host", "news.example.com, proxy")
	req.Header.Set("X-Forwarded-Proto", "http")

	assert.Equal(t, "https://kjtimes.co.kr", resolveSiteURL("kjtimes.co.kr/", req))
	assert.Equal(t, "http://localhost:3000", resolveSiteURL("http://localhost:3000", req))
	assert.Equal(t, "http://news.example.com", resolveSiteURL("", req))

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.Host = ""
	assert.Equal(t, defaultSiteURL, resolveSiteURL("", bare))
	assert.Equal(t, defaultSiteURL, resolveSiteURL("", nil))
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := SchemaStatements()
	require.NotEmpty(t, stmts)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS categories"))
	assert.True(t, strings.HasPrefix(stmts[len(stmts)-1], "INSERT IGNORE INTO categories"))
	for _, stmt := range stmts {
		assert.False(t, strings.HasSuffix(stmt, ";"))
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	n, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, len(stmts), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(".+").WillReturnError(errors.New("denied"))

	n, err := Migrate(context.Background(), db)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
