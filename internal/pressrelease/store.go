// Package pressrelease collects government press releases, rewrites them into
// article drafts with an LLM, and tracks their review state.
package pressrelease

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a press release does not exist.
var ErrNotFound = errors.New("press release not found")

// Status is the review state of a press release.
type Status string

// Press release states.
const (
	StatusCollected Status = "collected"
	StatusProcessed Status = "processed"
	StatusPublished Status = "published"
)

// Release is one collected press release and its generated rewrite.
type Release struct {
	ID               string     `json:"id"`
	OriginID         string     `json:"origin_id"`
	Source           string     `json:"source"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Link             string     `json:"link"`
	Images           []string   `json:"images"`
	PublishedAt      *time.Time `json:"published_at"`
	Status           Status     `json:"status"`
	GeneratedTitle   string     `json:"generated_title,omitempty"`
	GeneratedContent string     `json:"generated_content,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	Category         string     `json:"category,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Generated is the rewrite produced for a release.
type Generated struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// Store persists press releases.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const releaseColumns = `id, origin_id, source, title, content, link, images, published_at, status,
	generated_title, generated_content, summary, category, processed_at, created_at`

func scanRelease(scan func(...any) error) (Release, error) {
	var r Release
	var status string
	var content, link, images sql.NullString
	var genTitle, genContent, summary, cat sql.NullString
	var publishedAt, processedAt sql.NullTime
	err := scan(&r.ID, &r.OriginID, &r.Source, &r.Title, &content, &link, &images, &publishedAt, &status,
		&genTitle, &genContent, &summary, &cat, &processedAt, &r.CreatedAt)
	if err != nil {
		return Release{}, err
	}
	r.Content = content.String
	r.Link = link.String
	r.Status = Status(status)
	r.GeneratedTitle = genTitle.String
	r.GeneratedContent = genContent.String
	r.Summary = summary.String
	r.Category = cat.String
	if publishedAt.Valid {
		t := publishedAt.Time
		r.PublishedAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		r.ProcessedAt = &t
	}
	r.Images = []string{}
	if images.Valid && images.String != "" {
		if err := json.Unmarshal([]byte(images.String), &r.Images); err != nil {
			return Release{}, fmt.Errorf("decode images for %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Release, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Release{}
	for rows.Next() {
		r, err := scanRelease(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns releases newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]Release, error) {
	if limit <= 0 {
		limit = 100
	}
	if status == "" {
		return s.query(ctx, `SELECT `+releaseColumns+` FROM press_releases ORDER BY created_at DESC LIMIT ?`, limit)
	}
	return s.query(ctx, `SELECT `+releaseColumns+` FROM press_releases WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(status), limit)
}

// Get loads one release.
func (s *Store) Get(ctx context.Context, id string) (Release, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+releaseColumns+` FROM press_releases WHERE id = ?`, id)
	r, err := scanRelease(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Release{}, ErrNotFound
	}
	return r, err
}

// Upsert inserts a release or refreshes the collected fields of an existing
// one with the same origin id. Generated fields and status are kept.
func (s *Store) Upsert(ctx context.Context, r Release) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Images == nil {
		r.Images = []string{}
	}
	images, err := json.Marshal(r.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	var publishedAt any
	if r.PublishedAt != nil {
		publishedAt = r.PublishedAt.UTC()
	}

	const upsert = `INSERT INTO press_releases (id, origin_id, source, title, content, link, images, published_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE source = VALUES(source), title = VALUES(title), content = VALUES(content),
			link = VALUES(link), images = VALUES(images), published_at = VALUES(published_at)`
	_, err = s.db.ExecContext(ctx, upsert, r.ID, r.OriginID, r.Source, r.Title, r.Content, r.Link,
		string(images), publishedAt, string(StatusCollected))
	return err
}

// SaveGenerated stores an editor's changes to the generated fields.
func (s *Store) SaveGenerated(ctx context.Context, id string, g Generated) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE press_releases SET generated_title = ?, generated_content = ?, summary = ?, category = ? WHERE id = ?`,
		g.Title, g.Content, g.Summary, g.Category, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// MarkProcessed stores the rewrite and moves the release to processed.
func (s *Store) MarkProcessed(ctx context.Context, id string, g Generated) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE press_releases SET generated_title = ?, generated_content = ?, summary = ?, category = ?,
			processed_at = ?, status = ? WHERE id = ?`,
		g.Title, g.Content, g.Summary, g.Category, s.now().UTC(), string(StatusProcessed), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// MarkPublished moves the release to published.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE press_releases SET status = ?, processed_at = ? WHERE id = ?`,
		string(StatusPublished), s.now().UTC(), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
