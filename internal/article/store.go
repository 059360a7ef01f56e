package article

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// AdminPageSize is the admin article table page size.
const AdminPageSize = 20

// SearchLimit caps reader search results.
const SearchLimit = 100

// Store reads and writes articles in MySQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const summaryColumns = `a.id, a.title, COALESCE(a.slug, ''), COALESCE(a.excerpt, ''), COALESCE(a.thumbnail_url, ''),
	COALESCE(c.name, ''), COALESCE(c.slug, ''), COALESCE(p.full_name, ''), a.status, a.views,
	a.published_at, a.created_at, a.updated_at`

const summaryFrom = ` FROM articles a
	LEFT JOIN categories c ON c.id = a.category_id
	LEFT JOIN profiles p ON p.id = a.author_id`

const articleColumns = `a.id, a.title, COALESCE(a.sub_title, ''), COALESCE(a.slug, ''), a.content,
	COALESCE(a.excerpt, ''), COALESCE(a.summary, ''), COALESCE(a.thumbnail_url, ''),
	COALESCE(a.category_id, ''), COALESCE(c.name, ''), COALESCE(c.slug, ''),
	COALESCE(a.author_id, ''), COALESCE(p.full_name, ''), a.status,
	COALESCE(a.seo_title, ''), COALESCE(a.seo_description, ''), COALESCE(a.keywords, ''),
	a.views, a.published_at, a.created_at, a.updated_at`

const visibleStatuses = `a.status IN ('published', 'shared')`

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var status string
		var published sql.NullTime
		if err := rows.Scan(&s.ID, &s.Title, &s.Slug, &s.Excerpt, &s.ThumbnailURL,
			&s.CategoryName, &s.CategorySlug, &s.AuthorName, &status, &s.Views,
			&published, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = Status(status)
		s.PublishedAt = timePtr(published)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanArticle(row *sql.Row) (*Article, error) {
	var a Article
	var status string
	var published sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.SubTitle, &a.Slug, &a.Content,
		&a.Excerpt, &a.Summary, &a.ThumbnailURL,
		&a.CategoryID, &a.CategoryName, &a.CategorySlug,
		&a.AuthorID, &a.AuthorName, &status,
		&a.SEOTitle, &a.SEODescription, &a.Keywords,
		&a.Views, &published, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Status = Status(status)
	a.PublishedAt = timePtr(published)
	return &a, nil
}

func (s *Store) querySummaries(ctx context.Context, where, order string, args ...any) ([]Summary, error) {
	query := `SELECT ` + summaryColumns + summaryFrom + ` WHERE ` + where + ` ORDER BY ` + order
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// Latest returns the newest published articles.
func (s *Store) Latest(ctx context.Context, limit int) ([]Summary, error) {
	return s.querySummaries(ctx, `a.status = 'published'`, `a.published_at DESC LIMIT ?`, limit)
}

// Popular returns the most viewed published articles.
func (s *Store) Popular(ctx context.Context, limit int) ([]Summary, error) {
	return s.querySummaries(ctx, `a.status = 'published'`, `a.views DESC, a.published_at DESC LIMIT ?`, limit)
}

// ByCategory lists articles of a category. includeShared widens the filter to
// shared articles, which is how the special edition is listed.
func (s *Store) ByCategory(ctx context.Context, categorySlug string, includeShared bool, limit int) ([]Summary, error) {
	where := `c.slug = ? AND a.status = 'published'`
	if includeShared {
		where = `c.slug = ? AND ` + visibleStatuses
	}
	return s.querySummaries(ctx, where, `a.published_at DESC, a.created_at DESC LIMIT ?`, categorySlug, limit)
}

// PublicByID returns a published or shared article.
func (s *Store) PublicByID(ctx context.Context, id string) (*Article, error) {
	query := `SELECT ` + articleColumns + summaryFrom + ` WHERE a.id = ? AND ` + visibleStatuses
	return scanArticle(s.db.QueryRowContext(ctx, query, id))
}

// PublicBySlug returns a published or shared article by slug.
func (s *Store) PublicBySlug(ctx context.Context, slug string) (*Article, error) {
	query := `SELECT ` + articleColumns + summaryFrom + ` WHERE a.slug = ? AND ` + visibleStatuses
	return scanArticle(s.db.QueryRowContext(ctx, query, slug))
}

// Related returns other visible articles from the same category.
func (s *Store) Related(ctx context.Context, categoryID, excludeID string, limit int) ([]Summary, error) {
	return s.querySummaries(ctx, `a.category_id = ? AND a.id <> ? AND `+visibleStatuses,
		`a.published_at DESC LIMIT ?`, categoryID, excludeID, limit)
}

// ByTag returns visible articles sharing a tag, used for series listings.
func (s *Store) ByTag(ctx context.Context, tag, excludeID string, limit int) ([]Summary, error) {
	where := `a.id <> ? AND ` + visibleStatuses + ` AND a.id IN (
		SELECT at.article_id FROM article_tags at JOIN tags t ON t.id = at.tag_id WHERE t.name = ?)`
	return s.querySummaries(ctx, where, `a.published_at DESC LIMIT ?`, excludeID, tag, limit)
}

// ByAuthor returns other visible articles by the same reporter.
func (s *Store) ByAuthor(ctx context.Context, authorID, excludeID string, limit int) ([]Summary, error) {
	return s.querySummaries(ctx, `a.author_id = ? AND a.id <> ? AND `+visibleStatuses,
		`a.published_at DESC LIMIT ?`, authorID, excludeID, limit)
}

// TagsFor returns tag names linked to an article.
func (s *Store) TagsFor(ctx context.Context, articleID string, limit int) ([]string, error) {
	const query = `SELECT t.name FROM article_tags at JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id = ? ORDER BY t.name LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, articleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SearchParams filters reader search.
type SearchParams struct {
	Query        string
	CategorySlug string
	Since        *time.Time
	Relevance    bool
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search matches title, summary and excerpt of visible articles.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]Summary, error) {
	like := "%" + EscapeLike(p.Query) + "%"
	where := `(a.title LIKE ? OR a.summary LIKE ? OR a.excerpt LIKE ?) AND ` + visibleStatuses
	args := []any{like, like, like}
	if p.CategorySlug != "" {
		where += ` AND c.slug = ?`
		args = append(args, p.CategorySlug)
	}
	if p.Since != nil {
		where += ` AND a.published_at >= ?`
		args = append(args, *p.Since)
	}
	order := `a.published_at DESC LIMIT ?`
	if p.Relevance {
		order = `(a.title LIKE ?) DESC, a.published_at DESC LIMIT ?`
		args = append(args, like)
	}
	args = append(args, SearchLimit)
	return s.querySummaries(ctx, where, order, args...)
}

// IncrementViews bumps the view counter.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE articles SET views = views + 1 WHERE id = ?`, id)
	return err
}

// SitemapEntry is one URL in a sitemap.
type SitemapEntry struct {
	ID          string
	Slug        string
	Title       string
	Keywords    string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

func (s *Store) sitemapRows(ctx context.Context, query string, args ...any) ([]SitemapEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SitemapEntry
	for rows.Next() {
		var e SitemapEntry
		if err := rows.Scan(&e.ID, &e.Slug, &e.Title, &e.Keywords, &e.PublishedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SitemapEntries lists published articles for sitemap.xml.
func (s *Store) SitemapEntries(ctx context.Context, limit int) ([]SitemapEntry, error) {
	const query = `SELECT id, COALESCE(slug, ''), title, COALESCE(keywords, ''), published_at, updated_at
		FROM articles WHERE status = 'published' AND published_at IS NOT NULL
		ORDER BY published_at DESC LIMIT ?`
	return s.sitemapRows(ctx, query, limit)
}

// NewsSitemapEntries lists articles published since the given time.
func (s *Store) NewsSitemapEntries(ctx context.Context, since time.Time) ([]SitemapEntry, error) {
	const query = `SELECT id, COALESCE(slug, ''), title, COALESCE(keywords, ''), published_at, updated_at
		FROM articles WHERE status = 'published' AND published_at >= ?
		ORDER BY published_at DESC LIMIT 1000`
	return s.sitemapRows(ctx, query, since)
}

// ListParams filters the admin article table.
type ListParams struct {
	Status string
	Term   string
	Oldest bool
	Page   int
}

// ListResult is one page of the admin table.
type ListResult struct {
	Items      []Summary `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
}

// List pages through all articles for the admin table. Requests past the last
// page are clamped to it.
func (s *Store) List(ctx context.Context, p ListParams) (ListResult, error) {
	where := `1 = 1`
	var args []any
	if p.Status != "" && p.Status != "all" {
		where += ` AND a.status = ?`
		args = append(args, p.Status)
	}
	if term := strings.TrimSpace(p.Term); term != "" {
		like := "%" + EscapeLike(term) + "%"
		where += ` AND (a.title LIKE ? OR a.slug LIKE ?)`
		args = append(args, like, like)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM articles a WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count articles: %w", err)
	}

	totalPages := (total + AdminPageSize - 1) / AdminPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	order := `a.updated_at DESC`
	if p.Oldest {
		order = `a.updated_at ASC`
	}
	order += ` LIMIT ? OFFSET ?`
	args = append(args, AdminPageSize, (page-1)*AdminPageSize)

	items, err := s.querySummaries(ctx, where, order, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list articles: %w", err)
	}
	return ListResult{Items: items, Total: total, Page: page, TotalPages: totalPages}, nil
}

// Stats counts articles for the dashboard.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	const query = `SELECT COUNT(*),
		COALESCE(SUM(status = 'published'), 0),
		COALESCE(SUM(status = 'draft'), 0),
		COALESCE(SUM(status = 'pending_review'), 0)
		FROM articles`
	var st Stats
	err := s.db.QueryRowContext(ctx, query).Scan(&st.Total, &st.Published, &st.Draft, &st.PendingReview)
	return st, err
}

// Get returns an article in any status together with its tags.
func (s *Store) Get(ctx context.Context, id string) (*Article, error) {
	query := `SELECT ` + articleColumns + summaryFrom + ` WHERE a.id = ?`
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	tags, err := s.TagsFor(ctx, id, 100)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	a.Tags = tags
	return a, nil
}

func translateWriteErr(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrSlugTaken
	}
	return err
}

// Insert stores a new article and returns its id.
func (s *Store) Insert(ctx context.Context, a *Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const insert = `INSERT INTO articles (id, title, sub_title, slug, content, excerpt, summary,
		thumbnail_url, category_id, author_id, status, seo_title, seo_description, keywords, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, insert, a.ID, a.Title, a.SubTitle, nullString(a.Slug), a.Content,
		a.Excerpt, a.Summary, nullString(a.ThumbnailURL), nullString(a.CategoryID), nullString(a.AuthorID),
		string(a.Status), nullString(a.SEOTitle), a.SEODescription, a.Keywords, nullTime(a.PublishedAt))
	if err != nil {
		return "", translateWriteErr(err)
	}
	return a.ID, nil
}

// Update overwrites the editable columns of an article.
func (s *Store) Update(ctx context.Context, a *Article) error {
	return s.update(ctx, a, true)
}

// UpdateDraft is Update without touching published_at.
func (s *Store) UpdateDraft(ctx context.Context, a *Article) error {
	return s.update(ctx, a, false)
}

func (s *Store) update(ctx context.Context, a *Article, withPublishedAt bool) error {
	set := `title = ?, sub_title = ?, slug = ?, content = ?, excerpt = ?, summary = ?, thumbnail_url = ?,
		category_id = ?, status = ?, seo_title = ?, seo_description = ?, keywords = ?`
	args := []any{a.Title, a.SubTitle, nullString(a.Slug), a.Content, a.Excerpt, a.Summary,
		nullString(a.ThumbnailURL), nullString(a.CategoryID), string(a.Status),
		nullString(a.SEOTitle), a.SEODescription, a.Keywords}
	if withPublishedAt {
		set += `, published_at = ?`
		args = append(args, nullTime(a.PublishedAt))
	}
	set += `, updated_at = ?`
	args = append(args, s.now().UTC(), a.ID)

	res, err := s.db.ExecContext(ctx, `UPDATE articles SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return translateWriteErr(err)
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

// StatusState is what an admin status change needs to know about an article.
type StatusState struct {
	CategorySlug string
	Status       Status
	PublishedAt  *time.Time
}

// StatusStateOf loads the category and publication time of an article.
func (s *Store) StatusStateOf(ctx context.Context, id string) (StatusState, error) {
	const query = `SELECT COALESCE(c.slug, ''), a.status, a.published_at
		FROM articles a LEFT JOIN categories c ON c.id = a.category_id WHERE a.id = ?`
	var st StatusState
	var status string
	var published sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&st.CategorySlug, &status, &published); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, ErrNotFound
		}
		return st, err
	}
	st.Status = Status(status)
	st.PublishedAt = timePtr(published)
	return st, nil
}

// ChangeStatus applies the admin status rules to one article and returns the
// status actually stored.
func (s *Store) ChangeStatus(ctx context.Context, id string, target Status) (Status, error) {
	st, err := s.StatusStateOf(ctx, id)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	resolved := ResolveAdminStatus(st.CategorySlug, target)
	publishedAt := AdminPublishedAt(resolved, st.PublishedAt, now)

	const update = `UPDATE articles SET status = ?, published_at = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, update, string(resolved), nullTime(publishedAt), now, id); err != nil {
		return "", err
	}
	return resolved, nil
}

// Delete removes articles and reports how many went away. Deleting nothing
// is ErrNotFound.
func (s *Store) Delete(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `DELETE FROM articles WHERE id IN (` + placeholders(len(ids)) + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const clonePrefix = "[복사] "

func randomBase36(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String()
}

// CloneSlug is the throwaway slug given to a copied article.
func CloneSlug(now time.Time) string {
	return "copy-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + randomBase36(4)
}

// Clone copies an article as a new draft owned by authorID, including tags.
func (s *Store) Clone(ctx context.Context, id, authorID string) (string, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if authorID == "" {
		authorID = src.AuthorID
	}
	seoTitle := ""
	if src.SEOTitle != "" {
		seoTitle = clonePrefix + src.SEOTitle
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	newID := uuid.NewString()
	const insert = `INSERT INTO articles (id, title, sub_title, slug, content, excerpt, summary,
		thumbnail_url, category_id, author_id, status, seo_title, seo_description, keywords, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'draft', ?, ?, ?, NULL)`
	if _, err := tx.ExecContext(ctx, insert, newID, clonePrefix+src.Title, src.SubTitle, CloneSlug(s.now()),
		src.Content, src.Excerpt, src.Summary, nullString(src.ThumbnailURL), nullString(src.CategoryID),
		nullString(authorID), nullString(seoTitle), src.SEODescription, src.Keywords); err != nil {
		return "", translateWriteErr(err)
	}

	const copyTags = `INSERT INTO article_tags (article_id, tag_id)
		SELECT ?, tag_id FROM article_tags WHERE article_id = ?`
	if _, err := tx.ExecContext(ctx, copyTags, newID, id); err != nil {
		return "", fmt.Errorf("copy tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return newID, nil
}

// ReplaceTags links exactly the given tag names to an article, creating tags
// that do not exist yet.
func (s *Store) ReplaceTags(ctx context.Context, articleID string, names []string) error {
	names = NormalizeTags(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, articleID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO tags (id, name) VALUES (?, ?)`, uuid.NewString(), name); err != nil {
			return fmt.Errorf("create tag %s: %w", name, err)
		}
		const link = `INSERT INTO article_tags (article_id, tag_id) SELECT ?, id FROM tags WHERE name = ?`
		if _, err := tx.ExecContext(ctx, link, articleID, name); err != nil {
			return fmt.Errorf("link tag %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Categories lists all categories by name.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryBySlug resolves a category; ErrNotFound when missing.
func (s *Store) CategoryBySlug(ctx context.Context, slug string) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM categories WHERE slug = ?`, slug).
		Scan(&c.ID, &c.Name, &c.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

// CategorySlug returns the slug for a category id, or "" when unknown.
func (s *Store) CategorySlug(ctx context.Context, categoryID string) (string, error) {
	var slug string
	err := s.db.QueryRowContext(ctx, `SELECT slug FROM categories WHERE id = ?`, categoryID).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return slug, err
}

// Tags lists all tags by name.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountInCategory counts every article in a category regardless of status.
func (s *Store) CountInCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE category_id = ?`, categoryID).Scan(&n)
	return n, err
}

// SlugTaken reports whether another article already uses slug.
func (s *Store) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	query := `SELECT id FROM articles WHERE slug = ?`
	args := []any{slug}
	if excludeID != "" {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	query += ` LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
