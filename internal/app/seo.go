package app

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"kjtimes/internal/article"
)

// defaultAuthorName is shown when an article has no reporter profile.
const defaultAuthorName = "편집국"

// siteURL returns the public origin without a trailing slash. The configured
// URL wins; otherwise the forwarded host and protocol of the request are
// used, then the production domain.
func (s *Server) siteURL(r *http.Request) string {
	return resolveSiteURL(s.cfg.SiteURL, r)
}

func resolveSiteURL(configured string, r *http.Request) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		if !strings.HasPrefix(configured, "http://") && !strings.HasPrefix(configured, "https://") {
			configured = "https://" + configured
		}
		return strings.TrimRight(configured, "/")
	}
	if r != nil {
		host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
		if host == "" {
			host = r.Host
		}
		if host != "" {
			proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
			if proto == "" {
				proto = "https"
			}
			return proto + "://" + host
		}
	}
	return defaultSiteURL
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

type jsonLDThing struct {
	Type string `json:"@type"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type jsonLDPublisher struct {
	Type string      `json:"@type"`
	Name string      `json:"name"`
	Logo jsonLDThing `json:"logo"`
}

type newsArticleLD struct {
	Context          string          `json:"@context"`
	Type             string          `json:"@type"`
	Headline         string          `json:"headline"`
	Description      string          `json:"description"`
	DatePublished    string          `json:"datePublished,omitempty"`
	DateModified     string          `json:"dateModified,omitempty"`
	Author           jsonLDThing     `json:"author"`
	Publisher        jsonLDPublisher `json:"publisher"`
	Image            []string        `json:"image,omitempty"`
	MainEntityOfPage string          `json:"mainEntityOfPage"`
}

// newsArticleJSONLD builds the schema.org NewsArticle block for an article
// page. json.Marshal escapes <, > and & so the result is safe inside a
// script element.
func newsArticleJSONLD(a *article.Article, siteURL, siteName string) (template.JS, error) {
	published := publishedTime(a)
	modified := a.UpdatedAt
	if modified.IsZero() {
		modified = published
	}

	ld := newsArticleLD{
		Context:     "https://schema.org",
		Type:        "NewsArticle",
		Headline:    seoTitle(a),
		Description: seoDescription(a),
		Author:      jsonLDThing{Type: "Person", Name: authorName(a)},
		Publisher: jsonLDPublisher{
			Type: "Organization",
			Name: siteName,
			Logo: jsonLDThing{Type: "ImageObject", URL: siteURL + "/static/brand/KJ_Logo.png"},
		},
		MainEntityOfPage: siteURL + "/article/" + a.ID,
	}
	if !published.IsZero() {
		ld.DatePublished = published.UTC().Format(time.RFC3339)
	}
	if !modified.IsZero() {
		ld.DateModified = modified.UTC().Format(time.RFC3339)
	}
	if a.ThumbnailURL != "" {
		ld.Image = []string{a.ThumbnailURL}
	}

	data, err := json.Marshal(ld)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}

func publishedTime(a *article.Article) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

func seoTitle(a *article.Article) string {
	if a.SEOTitle != "" {
		return a.SEOTitle
	}
	return a.Title
}

func seoDescription(a *article.Article) string {
	switch {
	case a.SEODescription != "":
		return a.SEODescription
	case a.Excerpt != "":
		return a.Excerpt
	}
	return a.Summary
}

func authorName(a *article.Article) string {
	if a.AuthorName != "" {
		return a.AuthorName
	}
	return defaultAuthorName
}

// shareURL prefers the public slug link over the id link.
func shareURL(siteURL string, a *article.Article) string {
	if a.Slug != "" {
		return siteURL + "/share/" + a.Slug
	}
	return siteURL + "/article/" + a.ID
}
