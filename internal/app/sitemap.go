package app

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	sitemapLimit       = 1000
	newsSitemapWindow  = 48 * time.Hour
	sitemapCacheHeader = "public, max-age=300"
	publisherLanguage  = "ko"
)

// infoPaths are the static pages listed in sitemap.xml.
var infoPaths = []string{"/about", "/advertise", "/privacy", "/editorial", "/corrections", "/subscribe"}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type newsPublication struct {
	Name     string `xml:"news:name"`
	Language string `xml:"news:language"`
}

type newsEntry struct {
	Publication     newsPublication `xml:"news:publication"`
	PublicationDate string          `xml:"news:publication_date"`
	Title           string          `xml:"news:title"`
	Keywords        string          `xml:"news:keywords,omitempty"`
}

type newsURL struct {
	Loc  string    `xml:"loc"`
	News newsEntry `xml:"news:news"`
}

type newsURLSet struct {
	XMLName   xml.Name  `xml:"urlset"`
	XMLNS     string    `xml:"xmlns,attr"`
	XMLNSNews string    `xml:"xmlns:news,attr"`
	URLs      []newsURL `xml:"url"`
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	entries, err := s.articles.SitemapEntries(r.Context(), sitemapLimit)
	if err != nil {
		s.serverError(w, r, "sitemap", err)
		return
	}

	site := s.siteURL(r)
	now := s.now().UTC().Format(time.RFC3339)
	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{Loc: site, LastMod: now})
	for _, sec := range sections {
		set.URLs = append(set.URLs, sitemapURL{Loc: site + "/" + sec.Slug, LastMod: now})
	}
	for _, p := range infoPaths {
		set.URLs = append(set.URLs, sitemapURL{Loc: site + p, LastMod: now})
	}
	for _, e := range entries {
		mod := e.UpdatedAt
		if mod.IsZero() {
			mod = e.PublishedAt
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     site + "/article/" + e.ID,
			LastMod: mod.UTC().Format(time.RFC3339),
		})
	}
	s.writeXML(w, r, set)
}

func (s *Server) handleNewsSitemap(w http.ResponseWriter, r *http.Request) {
	since := s.now().Add(-newsSitemapWindow)
	entries, err := s.articles.NewsSitemapEntries(r.Context(), since)
	if err != nil {
		s.serverError(w, r, "news sitemap", err)
		return
	}

	site := s.siteURL(r)
	set := newsURLSet{
		XMLNS:     "http://www.sitemaps.org/schemas/sitemap/0.9",
		XMLNSNews: "http://www.google.com/schemas/sitemap-news/0.9",
	}
	for _, e := range entries {
		set.URLs = append(set.URLs, newsURL{
			Loc: site + "/article/" + e.ID,
			News: newsEntry{
				Publication:     newsPublication{Name: s.siteName(), Language: publisherLanguage},
				PublicationDate: e.PublishedAt.UTC().Format(time.RFC3339),
				Title:           e.Title,
				Keywords:        e.Keywords,
			},
		})
	}
	s.writeXML(w, r, set)
}

func (s *Server) writeXML(w http.ResponseWriter, r *http.Request, v any) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		s.serverError(w, r, "encode xml", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", sitemapCacheHeader)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	site := s.siteURL(r)
	var b strings.Builder
	b.WriteString("User-Agent: *\nAllow: /\n\n")
	fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", site)
	fmt.Fprintf(&b, "Sitemap: %s/news-sitemap.xml\n", site)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
