package app

import (
	"embed"
	"html/template"
	"net/url"
	"strings"
	"time"

	"kjtimes/internal/article"
)

// templateFS contains the HTML templates bundled with the binary.
//
//go:embed templates/*
var templateFS embed.FS

// staticFS holds the stylesheet served under /static/.
//
//go:embed static
var staticFS embed.FS

var seoul = loadSeoul()

func loadSeoul() *time.Location {
	if loc, err := time.LoadLocation("Asia/Seoul"); err == nil {
		return loc
	}
	return time.FixedZone("KST", 9*60*60)
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(seoul).Format("2006.01.02 15:04")
	},
	"day": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(seoul).Format("2006.01.02")
	},
	"iso": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"articleURL": func(s article.Summary) string {
		return "/article/" + url.PathEscape(s.ID)
	},
	// shareLink points special-edition cards at the share page.
	"shareLink": func(s article.Summary) string {
		if s.Slug != "" {
			return "/share/" + url.PathEscape(s.Slug)
		}
		return "/article/" + url.PathEscape(s.ID)
	},
	"searchURL": func(q string) string {
		return "/search?q=" + url.QueryEscape(q)
	},
	"join": strings.Join,
}

func parseTemplates() (*template.Template, error) {
	return template.New("base").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.gohtml")
}
