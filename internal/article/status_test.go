package article

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("pending_review")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, s)

	_, err = ParseStatus("deleted")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestResolveEditorStatus(t *testing.T) {
	assert.Equal(t, StatusDraft, ResolveEditorStatus(SpecialEditionSlug, StatusDraft))
	assert.Equal(t, StatusShared, ResolveEditorStatus(SpecialEditionSlug, StatusPublished))
	assert.Equal(t, StatusShared, ResolveEditorStatus(SpecialEditionSlug, StatusPendingReview))
	assert.Equal(t, StatusPublished, ResolveEditorStatus("politics", StatusPublished))
}

func TestResolveAdminStatus(t *testing.T) {
	for _, keep := range []Status{StatusDraft, StatusArchived, StatusRejected} {
		assert.Equal(t, keep, ResolveAdminStatus(SpecialEditionSlug, keep))
	}
	assert.Equal(t, StatusShared, ResolveAdminStatus(SpecialEditionSlug, StatusPublished))
	assert.Equal(t, StatusShared, ResolveAdminStatus(SpecialEditionSlug, StatusScheduled))
	assert.Equal(t, StatusScheduled, ResolveAdminStatus("economy", StatusScheduled))
}

func TestEditorPublishedAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)

	assert.Equal(t, &earlier, EditorPublishedAt(StatusPublished, &earlier, now))
	assert.Equal(t, now, *EditorPublishedAt(StatusShared, nil, now))
	assert.Nil(t, EditorPublishedAt(StatusDraft, &earlier, now))
	assert.Nil(t, EditorPublishedAt(StatusScheduled, &earlier, now))
}

func TestAdminPublishedAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	assert.Equal(t, &earlier, AdminPublishedAt(StatusPublished, &earlier, now))
	assert.Equal(t, now, *AdminPublishedAt(StatusShared, nil, now))
	assert.Equal(t, &earlier, AdminPublishedAt(StatusScheduled, &earlier, now))
	assert.Nil(t, AdminPublishedAt(StatusScheduled, nil, now))
	assert.Nil(t, AdminPublishedAt(StatusArchived, &earlier, now))
	assert.Nil(t, AdminPublishedAt(StatusPendingReview, &earlier, now))
}

func TestPubliclyVisible(t *testing.T) {
	assert.True(t, PubliclyVisible(StatusPublished))
	assert.True(t, PubliclyVisible(StatusShared))
	assert.False(t, PubliclyVisible(StatusDraft))
}
