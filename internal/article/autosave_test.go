package article

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSaver struct {
	mu        sync.Mutex
	autoForms []Form
	manual    []Status
	err       error
	release   chan struct{}
}

func (f *fakeSaver) AutoSave(ctx context.Context, form Form, authorID string) (SaveResult, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return SaveResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoForms = append(f.autoForms, form)
	if f.err != nil {
		return SaveResult{}, f.err
	}
	id := form.ID
	if id == "" {
		id = "new-id"
	}
	return SaveResult{ID: id, Slug: "n30q22-03abc", Status: StatusDraft, Created: form.ID == ""}, nil
}

func (f *fakeSaver) Save(ctx context.Context, form Form, target Status, authorID string) (SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, target)
	if f.err != nil {
		return SaveResult{}, f.err
	}
	return SaveResult{ID: "manual-id", Slug: "k70q22-03udh", Status: target}, nil
}

func (f *fakeSaver) autoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.autoForms)
}

func completeForm() Form {
	return Form{Title: "제목", Content: "<p>본문</p>", CategoryID: "cat-1"}
}

func TestAutoSaverSkipsCleanAndIncompleteForms(t *testing.T) {
	saver := &fakeSaver{}
	a := NewAutoSaver(saver, completeForm(), "u1", AutoSaveOptions{Interval: 5 * time.Millisecond})
	defer a.Close()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, saver.autoCount(), "clean form must not be saved")

	a.Update(Form{Title: "제목만"})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, saver.autoCount(), "incomplete form must not be saved")
	assert.True(t, a.State().Dirty)
}

func TestAutoSaverSavesDirtyFormAndReturnsToIdle(t *testing.T) {
	saver := &fakeSaver{}
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{
		Interval:  5 * time.Millisecond,
		SavedHold: 20 * time.Millisecond,
	})
	defer a.Close()

	a.Update(completeForm())

	require.Eventually(t, func() bool { return a.Status() == AutoSaveSaved }, time.Second, time.Millisecond)
	st := a.State()
	assert.False(t, st.Dirty)
	assert.True(t, st.Editing)
	assert.Equal(t, "new-id", st.Form.ID)
	assert.NotNil(t, st.LastSavedAt)

	require.Eventually(t, func() bool { return a.Status() == AutoSaveIdle }, time.Second, time.Millisecond)
	assert.Equal(t, 1, saver.autoCount(), "nothing changed since the save")

	a.Update(Form{Title: "제목 수정", Content: "<p>본문</p>", CategoryID: "cat-1"})
	require.Eventually(t, func() bool { return saver.autoCount() == 2 }, time.Second, time.Millisecond)
	saver.mu.Lock()
	assert.Equal(t, "new-id", saver.autoForms[1].ID, "second save updates the created article")
	saver.mu.Unlock()
}

func TestAutoSaverFailureKeepsDirty(t *testing.T) {
	saver := &fakeSaver{err: errors.New("db down")}
	var mu sync.Mutex
	var results []error
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{
		Interval: 5 * time.Millisecond,
		OnResult: func(auto bool, err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		},
	})
	defer a.Close()

	a.Update(completeForm())
	require.Eventually(t, func() bool { return saver.autoCount() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.State().LastError != "" }, time.Second, time.Millisecond)

	st := a.State()
	assert.True(t, st.Dirty)
	assert.Equal(t, AutoSaveIdle, st.Status)
	assert.Equal(t, "db down", st.LastError)

	mu.Lock()
	assert.NotEmpty(t, results)
	mu.Unlock()
}

func TestAutoSaverManualSaveSuppressesAutoSave(t *testing.T) {
	saver := &fakeSaver{}
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{Interval: time.Hour})
	defer a.Close()

	a.Update(completeForm())
	a.mu.Lock()
	a.manual = 1
	a.mu.Unlock()
	assert.False(t, a.tick(), "tick must not run during a manual save")

	a.mu.Lock()
	a.manual = 0
	a.inFlight = true
	a.mu.Unlock()
	assert.False(t, a.tick(), "tick must not re-enter")

	a.mu.Lock()
	a.inFlight = false
	a.mu.Unlock()

	res, err := a.ManualSave(context.Background(), StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, res.Status)
	st := a.State()
	assert.False(t, st.Dirty)
	assert.Equal(t, "manual-id", st.Form.ID)
	assert.Equal(t, 0, saver.autoCount())
}

func TestAutoSaverEditDuringSaveStaysDirty(t *testing.T) {
	saver := &fakeSaver{release: make(chan struct{})}
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{Interval: time.Hour})
	defer a.Close()

	a.Update(completeForm())
	saved := make(chan bool)
	go func() { saved <- a.tick() }()
	require.Eventually(t, func() bool { return a.Status() == AutoSaveSaving }, time.Second, time.Millisecond)

	a.Update(Form{Title: "새 제목", Content: "<p>본문</p>", CategoryID: "cat-1"})
	close(saver.release)
	require.True(t, <-saved)

	st := a.State()
	assert.True(t, st.Dirty, "edit made during the save is still unsaved")
	assert.Equal(t, "새 제목", st.Form.Title)
	assert.Equal(t, "new-id", st.Form.ID)
	assert.Equal(t, 1, saver.autoCount())
}

// insertingSaver creates a row whenever the form has no id.
type insertingSaver struct {
	mu      sync.Mutex
	inserts int
	started chan struct{}
	release chan struct{}
}

func (s *insertingSaver) write(form Form, id string) SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if form.ID == "" {
		s.inserts++
		return SaveResult{ID: id, Created: true}
	}
	return SaveResult{ID: form.ID}
}

func (s *insertingSaver) AutoSave(ctx context.Context, form Form, authorID string) (SaveResult, error) {
	close(s.started)
	select {
	case <-s.release:
	case <-ctx.Done():
		return SaveResult{}, ctx.Err()
	}
	return s.write(form, "auto-created"), nil
}

func (s *insertingSaver) Save(ctx context.Context, form Form, target Status, authorID string) (SaveResult, error) {
	res := s.write(form, "manual-created")
	res.Status = target
	return res, nil
}

func TestAutoSaverManualSaveWaitsForInFlightInsert(t *testing.T) {
	saver := &insertingSaver{started: make(chan struct{}), release: make(chan struct{})}
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{Interval: time.Hour})
	defer a.Close()

	a.Update(completeForm())
	go a.tick()
	<-saver.started

	type outcome struct {
		res SaveResult
		err error
	}
	manual := make(chan outcome)
	go func() {
		res, err := a.ManualSave(context.Background(), StatusPublished)
		manual <- outcome{res, err}
	}()

	select {
	case <-manual:
		t.Fatal("manual save must wait for the running auto-save")
	case <-time.After(20 * time.Millisecond):
	}

	close(saver.release)
	got := <-manual
	require.NoError(t, got.err)

	assert.Equal(t, "auto-created", got.res.ID)
	assert.Equal(t, "auto-created", a.State().Form.ID)
	saver.mu.Lock()
	assert.Equal(t, 1, saver.inserts)
	saver.mu.Unlock()
}

func TestAutoSaverCloseCancelsInFlightSave(t *testing.T) {
	saver := &fakeSaver{release: make(chan struct{})}
	a := NewAutoSaver(saver, Form{}, "u1", AutoSaveOptions{Interval: 5 * time.Millisecond})

	a.Update(completeForm())
	require.Eventually(t, func() bool { return a.Status() == AutoSaveSaving }, time.Second, time.Millisecond)

	a.Close()
	a.Close()
	assert.Equal(t, AutoSaveIdle, a.Status())
}

func TestSessionManagerLifecycle(t *testing.T) {
	saver := &fakeSaver{}
	m := NewSessionManager(saver, AutoSaveOptions{Interval: time.Hour}, time.Hour)
	defer m.Shutdown()

	id, st := m.Open(Form{}, "u1")
	assert.Equal(t, AutoSaveIdle, st.Status)
	assert.Equal(t, 1, m.Len())

	_, err := m.Update(id, "someone-else", completeForm())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	st, err = m.Update(id, "u1", completeForm())
	require.NoError(t, err)
	assert.True(t, st.Dirty)

	res, err := m.Save(context.Background(), id, "u1", StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, "manual-id", res.ID)

	require.NoError(t, m.Close(id, "u1"))
	assert.ErrorIs(t, m.Close(id, "u1"), ErrSessionNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestSessionManagerClosesIdleSessions(t *testing.T) {
	m := NewSessionManager(&fakeSaver{}, AutoSaveOptions{Interval: time.Hour}, time.Hour)
	defer m.Shutdown()

	var mu sync.Mutex
	var counts []int
	m.OnCountChange(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})

	m.Open(Form{}, "u1")
	m.Open(Form{}, "u2")
	m.closeIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, m.Len())

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 0}, counts)
	mu.Unlock()
}
