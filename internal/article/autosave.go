package article

import (
	"context"
	"sync"
	"time"

	"kjtimes/internal/logger"
)

// AutoSaveStatus is the indicator shown next to the editor toolbar.
type AutoSaveStatus string

const (
	AutoSaveIdle   AutoSaveStatus = "idle"
	AutoSaveSaving AutoSaveStatus = "saving"
	AutoSaveSaved  AutoSaveStatus = "saved"
)

const (
	DefaultAutoSaveInterval = 30 * time.Second
	defaultSavedHold        = 3 * time.Second
	autoSaveTimeout         = 15 * time.Second
)

// Saver persists editor forms. *Editor implements it.
type Saver interface {
	Save(ctx context.Context, form Form, target Status, authorID string) (SaveResult, error)
	AutoSave(ctx context.Context, form Form, authorID string) (SaveResult, error)
}

// AutoSaveOptions tunes an AutoSaver. Zero values take defaults.
type AutoSaveOptions struct {
	Interval  time.Duration
	SavedHold time.Duration
	Logger    logger.Logger
	// OnResult is called after every save attempt.
	OnResult func(auto bool, err error)
}

// SessionState is a snapshot of an editing session.
type SessionState struct {
	Form        Form           `json:"form"`
	Status      AutoSaveStatus `json:"status"`
	Dirty       bool           `json:"dirty"`
	Editing     bool           `json:"editing"`
	LastSavedAt *time.Time     `json:"last_saved_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}

// AutoSaver periodically writes a dirty form as a draft. It owns one
// background goroutine which Close stops.
type AutoSaver struct {
	saver    Saver
	authorID string
	opts     AutoSaveOptions
	log      logger.Logger

	// saveMu serialises calls into saver so a new article is inserted once.
	saveMu sync.Mutex

	mu          sync.Mutex
	form        Form
	revision    uint64
	dirty       bool
	status      AutoSaveStatus
	inFlight    bool
	manual      int
	lastSavedAt *time.Time
	lastErr     error

	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewAutoSaver starts an auto-save loop for form.
func NewAutoSaver(saver Saver, form Form, authorID string, opts AutoSaveOptions) *AutoSaver {
	if opts.Interval <= 0 {
		opts.Interval = DefaultAutoSaveInterval
	}
	if opts.SavedHold <= 0 {
		opts.SavedHold = defaultSavedHold
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AutoSaver{
		saver:    saver,
		authorID: authorID,
		opts:     opts,
		log:      log,
		form:     form,
		status:   AutoSaveIdle,
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AutoSaver) loop() {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()

	var reset *time.Timer
	var resetC <-chan time.Time
	defer func() {
		if reset != nil {
			reset.Stop()
		}
	}()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if a.tick() {
				if reset != nil {
					reset.Stop()
				}
				reset = time.NewTimer(a.opts.SavedHold)
				resetC = reset.C
			}
		case <-resetC:
			resetC = nil
			a.mu.Lock()
			if a.status == AutoSaveSaved {
				a.status = AutoSaveIdle
			}
			a.mu.Unlock()
		}
	}
}

// tick runs one auto-save attempt and reports whether it saved.
func (a *AutoSaver) tick() bool {
	a.mu.Lock()
	if !a.dirty || !a.form.Complete() || a.inFlight || a.manual > 0 {
		a.mu.Unlock()
		return false
	}
	a.inFlight = true
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	// A manual save may have started and finished while we waited.
	a.mu.Lock()
	if a.manual > 0 || !a.dirty {
		a.inFlight = false
		a.mu.Unlock()
		return false
	}
	a.status = AutoSaveSaving
	form := a.form
	revision := a.revision
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(a.ctx, autoSaveTimeout)
	res, err := a.saver.AutoSave(ctx, form, a.authorID)
	cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight = false
	a.lastErr = err
	if a.opts.OnResult != nil {
		a.opts.OnResult(true, err)
	}
	if err != nil {
		a.status = AutoSaveIdle
		a.log.Warn("auto-save failed", logger.String("article_id", form.ID), logger.Error(err))
		return false
	}

	a.applyResult(res, revision)
	a.status = AutoSaveSaved
	a.log.Debug("auto-saved draft", logger.String("article_id", res.ID), logger.String("slug", res.Slug))
	return true
}

// applyResult records a successful save. Callers hold mu.
func (a *AutoSaver) applyResult(res SaveResult, revision uint64) {
	now := time.Now()
	a.lastSavedAt = &now
	a.form.ID = res.ID
	a.form.Slug = res.Slug
	if a.revision == revision {
		a.dirty = false
	}
}

// Update replaces the form and marks the session dirty. The article id is
// owned by the session once assigned.
func (a *AutoSaver) Update(form Form) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.form.ID != "" {
		form.ID = a.form.ID
	}
	a.form = form
	a.revision++
	a.dirty = true
}

// ManualSave saves the current form with the requested status. It waits for
// an in-flight auto-save so that a freshly inserted article is updated rather
// than inserted twice. Auto-saves are suppressed while it runs.
func (a *AutoSaver) ManualSave(ctx context.Context, target Status) (SaveResult, error) {
	a.mu.Lock()
	a.manual++
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	form := a.form
	revision := a.revision
	a.mu.Unlock()

	res, err := a.saver.Save(ctx, form, target, a.authorID)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.manual--
	a.lastErr = err
	if a.opts.OnResult != nil {
		a.opts.OnResult(false, err)
	}
	if err != nil {
		return res, err
	}
	a.applyResult(res, revision)
	return res, nil
}

// Status returns the auto-save indicator.
func (a *AutoSaver) Status() AutoSaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// State returns a snapshot of the session.
func (a *AutoSaver) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := SessionState{
		Form:        a.form,
		Status:      a.status,
		Dirty:       a.dirty,
		Editing:     a.form.ID != "",
		LastSavedAt: a.lastSavedAt,
	}
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	return st
}

// Close stops the loop and waits for an in-flight save to return.
func (a *AutoSaver) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		close(a.stop)
		<-a.done
	})
}
