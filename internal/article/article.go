// Package article holds the newsroom domain: articles, categories, tags,
// slug generation, status rules, the MySQL store and the editor workflow.
package article

import (
	"database/sql"
	"errors"
	"time"
)

// Status is the editorial state of an article.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusPublished     Status = "published"
	StatusShared        Status = "shared"
	StatusScheduled     Status = "scheduled"
	StatusRejected      Status = "rejected"
	StatusArchived      Status = "archived"
)

// SpecialEditionSlug is the category whose articles are only reachable
// through share links.
const SpecialEditionSlug = "special-edition"

var (
	// ErrNotFound is returned when no article matches.
	ErrNotFound = errors.New("article not found")
	// ErrSlugTaken signals a unique-key violation on the slug column.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrSlugExhausted means every candidate sequence was already taken.
	ErrSlugExhausted = errors.New("could not generate a unique slug")
	// ErrIncompleteForm is returned when title, content or category is missing.
	ErrIncompleteForm = errors.New("title, category and content are required")
	// ErrUnknownCategory means the category id does not resolve to a slug.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidStatus rejects values outside the Status set.
	ErrInvalidStatus = errors.New("invalid status")
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusDraft, StatusPendingReview, StatusPublished, StatusShared,
		StatusScheduled, StatusRejected, StatusArchived:
		return s, nil
	}
	return "", ErrInvalidStatus
}

// Article is a full article row.
type Article struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	SubTitle       string     `json:"sub_title"`
	Slug           string     `json:"slug"`
	Content        string     `json:"content"`
	Excerpt        string     `json:"excerpt"`
	Summary        string     `json:"summary"`
	ThumbnailURL   string     `json:"thumbnail_url"`
	CategoryID     string     `json:"category_id"`
	CategoryName   string     `json:"category_name"`
	CategorySlug   string     `json:"category_slug"`
	AuthorID       string     `json:"author_id"`
	AuthorName     string     `json:"author_name"`
	Status         Status     `json:"status"`
	SEOTitle       string     `json:"seo_title"`
	SEODescription string     `json:"seo_description"`
	Keywords       string     `json:"keywords"`
	Views          int        `json:"views"`
	PublishedAt    *time.Time `json:"published_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Tags           []string   `json:"tags,omitempty"`
}

// Summary is the list projection used by reader pages and the admin table.
type Summary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Excerpt      string     `json:"excerpt"`
	ThumbnailURL string     `json:"thumbnail_url"`
	CategoryName string     `json:"category_name"`
	CategorySlug string     `json:"category_slug"`
	AuthorName   string     `json:"author_name"`
	Status       Status     `json:"status"`
	Views        int        `json:"views"`
	PublishedAt  *time.Time `json:"published_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayTime is the timestamp shown next to a headline.
func (s Summary) DisplayTime() time.Time {
	if s.PublishedAt != nil {
		return *s.PublishedAt
	}
	return s.CreatedAt
}

// Category is a news section.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Tag is a free-form label linked to articles.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Form is the editor's form state.
type Form struct {
	ID             string   `json:"id,omitempty"`
	Title          string   `json:"title"`
	SubTitle       string   `json:"sub_title"`
	Slug           string   `json:"slug"`
	Content        string   `json:"content"`
	CategoryID     string   `json:"category_id"`
	Tags           []string `json:"tags"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
	Keywords       string   `json:"keywords"`
	ThumbnailURL   string   `json:"thumbnail_url"`
}

// Complete reports whether the form carries the fields every save needs.
func (f Form) Complete() bool {
	return f.Title != "" && f.Content != "" && f.CategoryID != ""
}

// Stats is the admin dashboard counter set.
type Stats struct {
	Total         int `json:"total"`
	Published     int `json:"published"`
	Draft         int `json:"draft"`
	PendingReview int `json:"pending_review"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
