package app

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"kjtimes/internal/article"
	"kjtimes/internal/logger"
)

const (
	homeLatestLimit     = 30
	homeSectionLimit    = 4
	popularLimit        = 5
	categoryLimit       = 50
	specialEditionLimit = 30
	relatedLimit        = 5
	tagLimit            = 10
	maxQueryLength      = 128

	homeCacheKey = "page:home"
	homeCacheTTL = 60 * time.Second

	shareRelatedLimit = 16
	shareLatestLimit  = 6
	shareMobileLimit  = 5
	updatedThreshold  = time.Minute
)

// searchWindows maps the date filter to a look-back in days.
var searchWindows = map[string]int{
	"today":   1,
	"week":    7,
	"month":   30,
	"3months": 90,
	"year":    365,
}

type sectionBlock struct {
	Slug     string            `json:"slug"`
	Name     string            `json:"name"`
	Articles []article.Summary `json:"articles"`
}

type homeView struct {
	Headline []article.Summary `json:"headline"`
	Main     []article.Summary `json:"main"`
	Popular  []article.Summary `json:"popular"`
	Sections []sectionBlock    `json:"sections"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	view, err := cached(r.Context(), s, homeCacheKey, homeCacheTTL, s.buildHome)
	if err != nil {
		s.serverError(w, r, "home", err)
		return
	}
	s.render(w, r, http.StatusOK, "home.gohtml", struct {
		Meta pageMeta
		homeView
	}{
		Meta:     s.meta(r, "", "광주·전남의 현장을 가장 가까이에서 전하는 광전타임즈"),
		homeView: view,
	})
}

func (s *Server) buildHome(ctx context.Context) (homeView, error) {
	g, gctx := errgroup.WithContext(ctx)

	var latest []article.Summary
	g.Go(func() error {
		var err error
		latest, err = s.articles.Latest(gctx, homeLatestLimit)
		return err
	})
	blocks := make([]sectionBlock, len(homeSections))
	for i, slug := range homeSections {
		g.Go(func() error {
			list, err := s.articles.ByCategory(gctx, slug, false, homeSectionLimit)
			if err != nil {
				return err
			}
			sec, _ := sectionBySlug(slug)
			blocks[i] = sectionBlock{Slug: slug, Name: sec.Name, Articles: list}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return homeView{}, err
	}

	var view homeView
	if len(latest) == 0 {
		return view, nil
	}
	view.Headline = window(latest, 0, 3)
	view.Main = window(latest, 3, 12)
	view.Popular = mostViewed(latest, popularLimit)
	for _, b := range blocks {
		if len(b.Articles) > 0 {
			view.Sections = append(view.Sections, b)
		}
	}
	return view, nil
}

// window returns list[from:to] clamped to the slice bounds.
func window(list []article.Summary, from, to int) []article.Summary {
	if from >= len(list) {
		return nil
	}
	if to > len(list) {
		to = len(list)
	}
	return list[from:to]
}

// mostViewed sorts a copy by views, keeping the original order for ties.
func mostViewed(list []article.Summary, n int) []article.Summary {
	sorted := make([]article.Summary, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Views > sorted[j].Views })
	return window(sorted, 0, n)
}

type listingView struct {
	Meta     pageMeta
	Section  section
	Articles []article.Summary
	Popular  []article.Summary
	Share    bool
}

func (s *Server) handleCategory(sec section) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.articles.ByCategory(r.Context(), sec.Slug, false, categoryLimit)
		if err != nil {
			s.serverError(w, r, "category "+sec.Slug, err)
			return
		}
		s.render(w, r, http.StatusOK, "category.gohtml", listingView{
			Meta:     s.meta(r, sec.Name, sec.Description),
			Section:  sec,
			Articles: list,
			Popular:  mostViewed(list, popularLimit),
		})
	}
}

// handleSpecialEdition lists the special edition, including shared articles
// that are otherwise hidden from the section pages.
func (s *Server) handleSpecialEdition(w http.ResponseWriter, r *http.Request) {
	list, err := s.articles.ByCategory(r.Context(), article.SpecialEditionSlug, true, specialEditionLimit)
	if err != nil {
		s.serverError(w, r, "special edition", err)
		return
	}
	sec := section{Slug: article.SpecialEditionSlug, Name: "창간특별호", Description: "광전타임즈 창간특별호"}
	s.render(w, r, http.StatusOK, "category.gohtml", listingView{
		Meta:     s.meta(r, sec.Name, sec.Description),
		Section:  sec,
		Articles: list,
		Popular:  mostViewed(list, popularLimit),
		Share:    true,
	})
}

type articleView struct {
	Meta        pageMeta
	Article     *article.Article
	Content     template.HTML
	JSONLD      template.JS
	ShareURL    string
	Tags        []string
	Related     []article.Summary
	Series      []article.Summary
	ByAuthor    []article.Summary
	Popular     []article.Summary
	AuthorName  string
	Published   time.Time
	ReadMinutes int
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.articles.PublicByID(ctx, r.PathValue("id"))
	if errors.Is(err, article.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "article", err)
		return
	}

	if err := s.articles.IncrementViews(ctx, a.ID); err != nil {
		s.log.Warn("Increment views failed", logger.String("id", a.ID), logger.Error(err))
	}
	s.metrics.ArticleViewed()

	site := s.siteURL(r)
	ld, err := newsArticleJSONLD(a, site, s.siteName())
	if err != nil {
		s.serverError(w, r, "article json-ld", err)
		return
	}

	view := articleView{
		Meta:        s.meta(r, seoTitle(a), seoDescription(a)),
		Article:     a,
		Content:     s.articleHTML(r, a.Content),
		JSONLD:      ld,
		ShareURL:    shareURL(site, a),
		AuthorName:  authorName(a),
		Published:   publishedTime(a),
		ReadMinutes: article.ContentStats(a.Content).ReadMinutes,
	}
	view.Meta.Image = a.ThumbnailURL
	view.Meta.Canonical = site + "/article/" + a.ID

	// Sidebars are best effort: a failing list leaves its block empty.
	view.Related = s.listOrLog("related", func() ([]article.Summary, error) {
		return s.articles.Related(ctx, a.CategoryID, a.ID, relatedLimit)
	})
	view.Tags, err = s.articles.TagsFor(ctx, a.ID, tagLimit)
	if err != nil {
		s.log.Warn("Load tags failed", logger.String("id", a.ID), logger.Error(err))
	}
	if len(view.Tags) > 0 {
		view.Series = s.listOrLog("series", func() ([]article.Summary, error) {
			return s.articles.ByTag(ctx, view.Tags[0], a.ID, relatedLimit)
		})
	}
	if a.AuthorID != "" {
		view.ByAuthor = s.listOrLog("by author", func() ([]article.Summary, error) {
			return s.articles.ByAuthor(ctx, a.AuthorID, a.ID, relatedLimit)
		})
	}
	view.Popular = s.listOrLog("popular", func() ([]article.Summary, error) {
		return s.articles.Popular(ctx, popularLimit)
	})

	name := "article.gohtml"
	if DeviceFrom(ctx) == DeviceMobile {
		name = "article_mobile.gohtml"
	}
	s.render(w, r, http.StatusOK, name, view)
}

func (s *Server) listOrLog(what string, load func() ([]article.Summary, error)) []article.Summary {
	list, err := load()
	if err != nil {
		s.log.Warn("Load article list failed", logger.String("list", what), logger.Error(err))
		return nil
	}
	return list
}

// articleHTML prepares stored content for display.
func (s *Server) articleHTML(r *http.Request, content string) template.HTML {
	host := ""
	if u, err := url.Parse(s.siteURL(r)); err == nil {
		host = u.Host
	}
	cleaned := article.Sanitize(article.NormalizeArticleHTML(content))
	return template.HTML(decorateExternalLinks(cleaned, host))
}

type shareView struct {
	Meta        pageMeta
	Article     *article.Article
	Content     template.HTML
	Deck        string
	Section     string
	Published   time.Time
	Updated     bool
	ReadMinutes int
	Special     bool
	Current     *article.Summary
	Next        *article.Summary
	Latest      []article.Summary
	Popular     []article.Summary
	MobileMore  []article.Summary
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.articles.PublicBySlug(ctx, r.PathValue("slug"))
	if errors.Is(err, article.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "share", err)
		return
	}

	view := shareView{
		Meta:        s.meta(r, seoTitle(a), seoDescription(a)),
		Article:     a,
		Content:     s.articleHTML(r, a.Content),
		Deck:        firstNonEmpty(a.Excerpt, a.Summary),
		Section:     firstNonEmpty(a.CategoryName, article.SpecialEditionSlug),
		Published:   publishedTime(a),
		Updated:     isUpdated(a),
		ReadMinutes: article.ShareReadMinutes(a.Content),
		Special:     a.CategorySlug == article.SpecialEditionSlug,
	}
	view.Meta.Image = a.ThumbnailURL

	if view.Special {
		list, err := s.articles.ByCategory(ctx, article.SpecialEditionSlug, true, shareRelatedLimit)
		if err != nil {
			s.log.Warn("Load special edition failed", logger.String("slug", a.Slug), logger.Error(err))
		}
		fillCirculation(&view, a.Slug, list)
	}
	s.render(w, r, http.StatusOK, "share.gohtml", view)
}

// fillCirculation splits the special edition list into the reader's current
// article and the articles offered next.
func fillCirculation(view *shareView, slug string, related []article.Summary) {
	var others []article.Summary
	for i := range related {
		switch related[i].Slug {
		case "":
			continue
		case slug:
			cur := related[i]
			view.Current = &cur
		default:
			others = append(others, related[i])
		}
	}
	if len(others) > 0 {
		next := others[0]
		view.Next = &next
	}
	view.Latest = window(others, 0, shareLatestLimit)
	view.Popular = mostViewed(others, popularLimit)
	view.MobileMore = window(others, 1, shareMobileLimit+1)
}

// isUpdated reports an edit more than a minute after publication.
func isUpdated(a *article.Article) bool {
	published := publishedTime(a)
	if published.IsZero() || a.UpdatedAt.IsZero() {
		return false
	}
	diff := a.UpdatedAt.Sub(published)
	if diff < 0 {
		diff = -diff
	}
	return diff > updatedThreshold
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type searchView struct {
	Meta     pageMeta
	Query    string
	Category string
	Date     string
	Sort     string
	Results  []article.Summary
	Searched bool
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := article.Truncate(strings.TrimSpace(q.Get("q")), maxQueryLength)

	view := searchView{
		Query:    query,
		Category: q.Get("category"),
		Date:     q.Get("date"),
		Sort:     q.Get("sort"),
	}
	view.Meta = s.meta(r, "검색", "")
	view.Meta.Query = query

	if query != "" {
		params := article.SearchParams{
			Query:     query,
			Relevance: view.Sort == "relevance",
		}
		if _, ok := sectionBySlug(view.Category); ok || view.Category == article.SpecialEditionSlug {
			params.CategorySlug = view.Category
		}
		if days, ok := searchWindows[view.Date]; ok {
			since := s.now().AddDate(0, 0, -days)
			params.Since = &since
		}

		results, err := s.articles.Search(r.Context(), params)
		if err != nil {
			s.serverError(w, r, "search", err)
			return
		}
		view.Results = results
		view.Searched = true
		view.Meta.Title = query + " 검색 결과"
	}
	s.render(w, r, http.StatusOK, "search.gohtml", view)
}
