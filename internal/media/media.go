// Package media manages the CMS media library: uploaded files in object
// storage plus a row per file in MySQL.
package media

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a media row does not exist.
var ErrNotFound = errors.New("media not found")

// Upload folders.
const (
	FolderLibrary  = "library"
	FolderArticles = "articles"
)

// Item types.
const (
	TypeImage = "image"
	TypeVideo = "video"
	TypeFile  = "file"
)

// DefaultListLimit caps library listings.
const DefaultListLimit = 100

// Item is one media library row.
type Item struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	StorageKey string    `json:"storage_key"`
	Type       string    `json:"type"`
	FileSize   int64     `json:"file_size"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TypeOf maps a MIME type to image, video or file.
func TypeOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return TypeImage
	case strings.HasPrefix(contentType, "video/"):
		return TypeVideo
	default:
		return TypeFile
	}
}

// FormatFileSize renders a byte count as B, KB or MB with one decimal.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes <= 0:
		return "—"
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}

// ObjectKey builds `{folder}/{unixms}-{rand}.{ext}`.
func ObjectKey(folder, filename string, now time.Time) string {
	if folder != FolderArticles {
		folder = FolderLibrary
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", folder, now.UnixMilli(), randomSuffix(6), ext)
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	var b strings.Builder
	size := big.NewInt(int64(len(suffixAlphabet)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, size)
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(suffixAlphabet[v.Int64()])
	}
	return b.String()
}

// Store persists media rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const itemColumns = `id, filename, url, storage_key, type, file_size, uploaded_by, created_at`

func scanItem(scan func(...any) error) (Item, error) {
	var it Item
	var uploadedBy sql.NullString
	if err := scan(&it.ID, &it.Filename, &it.URL, &it.StorageKey, &it.Type, &it.FileSize, &uploadedBy, &it.CreatedAt); err != nil {
		return Item{}, err
	}
	it.UploadedBy = uploadedBy.String
	return it, nil
}

// List returns items newest first, optionally filtered by filename.
func (s *Store) List(ctx context.Context, search string, limit int) ([]Item, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	query := `SELECT ` + itemColumns + ` FROM media`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE filename LIKE ?`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get loads one item.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media WHERE id = ?`, id)
	it, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

// Insert stores a new row and fills in its id.
func (s *Store) Insert(ctx context.Context, it *Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	const insert = `INSERT INTO media (id, filename, url, storage_key, type, file_size, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var uploadedBy any
	if it.UploadedBy != "" {
		uploadedBy = it.UploadedBy
	}
	_, err := s.db.ExecContext(ctx, insert, it.ID, it.Filename, it.URL, it.StorageKey, it.Type, it.FileSize, uploadedBy, it.CreatedAt)
	return err
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Library couples object storage and the media table.
type Library struct {
	objects ObjectStore
	store   *Store
	now     func() time.Time
}

// NewLibrary builds a library.
func NewLibrary(objects ObjectStore, store *Store) *Library {
	return &Library{objects: objects, store: store, now: time.Now}
}

// Upload is one incoming file.
type Upload struct {
	Folder      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	UploadedBy  string
}

// Upload stores the object then records it. Inline editor images under
// articles/ are recorded too so they show up in the library.
func (l *Library) Upload(ctx context.Context, up Upload) (Item, error) {
	now := l.now()
	key := ObjectKey(up.Folder, up.Filename, now)
	if err := l.objects.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return Item{}, err
	}
	it := Item{
		Filename:   up.Filename,
		URL:        l.objects.URL(key),
		StorageKey: key,
		Type:       TypeOf(up.ContentType),
		FileSize:   up.Size,
		UploadedBy: up.UploadedBy,
		CreatedAt:  now.UTC(),
	}
	if err := l.store.Insert(ctx, &it); err != nil {
		if delErr := l.objects.Delete(ctx, key); delErr != nil {
			return Item{}, errors.Join(fmt.Errorf("record media: %w", err), delErr)
		}
		return Item{}, fmt.Errorf("record media: %w", err)
	}
	return it, nil
}

// List proxies Store.List.
func (l *Library) List(ctx context.Context, search string, limit int) ([]Item, error) {
	return l.store.List(ctx, search, limit)
}

// Delete removes the stored object and then its row.
func (l *Library) Delete(ctx context.Context, id string) error {
	it, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.objects.Delete(ctx, it.StorageKey); err != nil {
		return err
	}
	return l.store.Delete(ctx, id)
}
