package article

import "time"

// ResolveEditorStatus maps the editor's requested status. Special-edition
// articles are never listed, so anything past a draft becomes shared.
func ResolveEditorStatus(categorySlug string, target Status) Status {
	if categorySlug == SpecialEditionSlug && target != StatusDraft {
		return StatusShared
	}
	return target
}

// EditorPublishedAt keeps an existing publication time for published and
// shared articles, stamps now when there is none, and clears it otherwise.
func EditorPublishedAt(status Status, existing *time.Time, now time.Time) *time.Time {
	if status != StatusPublished && status != StatusShared {
		return nil
	}
	if existing != nil {
		return existing
	}
	return &now
}

// ResolveAdminStatus applies the article-table status change rules.
func ResolveAdminStatus(categorySlug string, target Status) Status {
	if categorySlug != SpecialEditionSlug {
		return target
	}
	switch target {
	case StatusDraft, StatusArchived, StatusRejected:
		return target
	}
	return StatusShared
}

// AdminPublishedAt is the publication time after an admin status change.
// Scheduled articles keep whatever time was set for them.
func AdminPublishedAt(status Status, existing *time.Time, now time.Time) *time.Time {
	switch status {
	case StatusPublished, StatusShared:
		if existing != nil {
			return existing
		}
		return &now
	case StatusScheduled:
		return existing
	}
	return nil
}

// PubliclyVisible reports whether readers may open the article directly.
func PubliclyVisible(s Status) bool {
	return s == StatusPublished || s == StatusShared
}
