package article

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SaveResult describes a stored article after an editor save.
type SaveResult struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Status  Status `json:"status"`
	Created bool   `json:"created"`
}

// Editor implements the write form's save workflow on top of Store.
type Editor struct {
	store *Store
	slugs *Generator
	now   func() time.Time
}

// NewEditor builds an Editor whose slug generator reads from the same store.
func NewEditor(store *Store) *Editor {
	return &Editor{store: store, slugs: NewGenerator(store), now: time.Now}
}

// Slugs exposes the generator for the "regenerate slug" action.
func (e *Editor) Slugs() *Generator {
	return e.slugs
}

// Save validates the form, resolves slug, status and publication time, writes
// the article and replaces its tags.
func (e *Editor) Save(ctx context.Context, form Form, target Status, authorID string) (SaveResult, error) {
	return e.save(ctx, form, target, authorID, false)
}

// AutoSave writes the form as a draft. Tags and published_at are left as they
// are.
func (e *Editor) AutoSave(ctx context.Context, form Form, authorID string) (SaveResult, error) {
	return e.save(ctx, form, StatusDraft, authorID, true)
}

func (e *Editor) save(ctx context.Context, form Form, target Status, authorID string, auto bool) (SaveResult, error) {
	form.Title = strings.TrimSpace(form.Title)
	if !form.Complete() || strings.TrimSpace(form.Content) == "" {
		return SaveResult{}, ErrIncompleteForm
	}

	categorySlug, err := e.store.CategorySlug(ctx, form.CategoryID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("resolve category: %w", err)
	}
	if categorySlug == "" {
		return SaveResult{}, ErrUnknownCategory
	}

	editing := form.ID != ""
	slug := NormalizeSlugInput(form.Slug)
	if !editing || slug == "" {
		generated, err := e.slugs.Generate(ctx, form.CategoryID, form.Title, form.ID)
		if err != nil {
			return SaveResult{}, err
		}
		slug = generated.Value
	}

	status := StatusDraft
	if !auto {
		status = ResolveEditorStatus(categorySlug, target)
	}

	excerpt := Excerpt(form.Content)
	seoTitle := form.SEOTitle
	if seoTitle == "" {
		seoTitle = form.Title
	}
	seoDescription := form.SEODescription
	if seoDescription == "" {
		seoDescription = excerpt
	}

	a := &Article{
		ID:             form.ID,
		Title:          form.Title,
		SubTitle:       form.SubTitle,
		Slug:           slug,
		Content:        form.Content,
		Excerpt:        excerpt,
		Summary:        excerpt,
		ThumbnailURL:   form.ThumbnailURL,
		CategoryID:     form.CategoryID,
		AuthorID:       authorID,
		Status:         status,
		SEOTitle:       seoTitle,
		SEODescription: seoDescription,
		Keywords:       form.Keywords,
	}

	if editing {
		if auto {
			if err := e.store.UpdateDraft(ctx, a); err != nil {
				return SaveResult{}, err
			}
			return SaveResult{ID: a.ID, Slug: slug, Status: status}, nil
		}
		current, err := e.store.StatusStateOf(ctx, form.ID)
		if err != nil {
			return SaveResult{}, err
		}
		a.PublishedAt = EditorPublishedAt(status, current.PublishedAt, e.now().UTC())
		if err := e.store.Update(ctx, a); err != nil {
			return SaveResult{}, err
		}
	} else {
		if !auto {
			a.PublishedAt = EditorPublishedAt(status, nil, e.now().UTC())
		}
		id, err := e.store.Insert(ctx, a)
		if err != nil {
			return SaveResult{}, err
		}
		a.ID = id
	}

	if !auto {
		if err := e.store.ReplaceTags(ctx, a.ID, form.Tags); err != nil {
			return SaveResult{}, fmt.Errorf("sync tags: %w", err)
		}
	}
	return SaveResult{ID: a.ID, Slug: slug, Status: status, Created: !editing}, nil
}
