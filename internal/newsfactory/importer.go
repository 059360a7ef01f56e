package newsfactory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kjtimes/internal/article"
)

// ErrMissingFields is returned when an incoming article lacks a title or body.
var ErrMissingFields = errors.New("missing required fields: title, content")

// DefaultCategory receives factory categories with no mapping.
const DefaultCategory = "society"

var categoryMap = map[string]string{
	"행정":   "society",
	"복지":   "society",
	"문화":   "culture",
	"경제":   "economy",
	"안전":   "society",
	"기타":   "society",
	"정치":   "politics",
	"사회":   "society",
	"스포츠":  "sports",
	"오피니언": "opinion",
}

// MapCategory converts a factory category name to a site category slug.
func MapCategory(name string) string {
	if slug, ok := categoryMap[strings.TrimSpace(name)]; ok {
		return slug
	}
	return DefaultCategory
}

// Article is an article as the factory serves or pushes it.
type Article struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	Content     string   `json:"content,omitempty"`
	Category    string   `json:"category,omitempty"`
	Source      string   `json:"source,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	Images      []string `json:"images,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
	ProcessedAt string   `json:"processed_at,omitempty"`
}

// ArticleList is the factory's paged article listing.
type ArticleList struct {
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// ArticleWriter is the part of article.Store the importer uses.
type ArticleWriter interface {
	CategoryBySlug(ctx context.Context, slug string) (article.Category, error)
	Insert(ctx context.Context, a *article.Article) (string, error)
}

// Importer stores factory articles as pending_review drafts.
type Importer struct {
	articles ArticleWriter
}

// NewImporter returns an Importer.
func NewImporter(articles ArticleWriter) *Importer {
	return &Importer{articles: articles}
}

// Import stores a factory article fetched by an editor. The body falls back to
// the summary when the factory has no full content.
func (im *Importer) Import(ctx context.Context, a Article) (string, error) {
	content := a.Content
	if content == "" {
		content = a.Summary
	}
	return im.insert(ctx, a.Title, content, a.Summary, a.Category)
}

// Receive stores an article pushed by the factory. Content is sanitised
// before it is stored.
func (im *Importer) Receive(ctx context.Context, a Article) (string, error) {
	if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Content) == "" {
		return "", ErrMissingFields
	}
	return im.insert(ctx, a.Title, article.Sanitize(a.Content), a.Summary, a.Category)
}

func (im *Importer) insert(ctx context.Context, title, content, summary, category string) (string, error) {
	excerpt := article.Excerpt(content)
	if summary == "" {
		summary = excerpt
	}

	a := &article.Article{
		Title:   title,
		Content: content,
		Summary: summary,
		Excerpt: excerpt,
		Status:  article.StatusPendingReview,
	}
	cat, err := im.articles.CategoryBySlug(ctx, MapCategory(category))
	switch {
	case err == nil:
		a.CategoryID = cat.ID
	case !errors.Is(err, article.ErrNotFound):
		return "", fmt.Errorf("resolve category: %w", err)
	}

	id, err := im.articles.Insert(ctx, a)
	if err != nil {
		return "", fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}
