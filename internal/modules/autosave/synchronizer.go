package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/pkg/formpath"
)

var (
	ErrSaveInProgress = errors.New("a draft save is already in flight")
	ErrNothingToSave  = errors.New("no unsaved changes")
	ErrNoDraftID      = errors.New("save response carried no draft id")
	ErrClosed         = errors.New("draft session closed")
)

// Form is the editor content of one draft session.
type Form struct {
	DocumentRef        string
	SectionRef         string
	CaptureStartTime   time.Time
	SourceRevisionTime *time.Time
	ScrollPosition     int
	Text               string
	Summary            string
	IsMinorEdit        bool
	// Structured selects Fields over Text as the draft content.
	Structured bool
	Fields     []formpath.Field
}

// Request is one save as sent to the server. Content is the page text or, for a
// structured form, the flattened field tree.
type Request struct {
	DraftToken         string     `json:"draftToken"`
	EditSessionToken   string     `json:"editSessionToken"`
	DraftID            uint64     `json:"draftId,omitempty"`
	DocumentRef        *string    `json:"documentRef,omitempty"`
	SectionRef         *string    `json:"sectionRef,omitempty"`
	CaptureStartTime   time.Time  `json:"captureStartTime"`
	SourceRevisionTime *time.Time `json:"sourceRevisionTime,omitempty"`
	ScrollPosition     int        `json:"scrollPosition"`
	Content            any        `json:"content"`
	SummaryText        string     `json:"summaryText"`
	IsMinorEdit        bool       `json:"isMinorEdit"`
	IsStructuredForm   bool       `json:"isStructuredForm"`
}

// Saver sends one save request and returns the id the server assigned.
type Saver interface {
	Save(ctx context.Context, req *Request) (uint64, error)
}

// Config is the autosave policy.
type Config struct {
	// Wait is the autosave delay. Zero or less leaves only manual saves.
	Wait time.Duration
	// BasedOnInput restarts the delay on every edit instead of saving on a fixed
	// cadence.
	BasedOnInput bool
}

// ConfigFromSeconds builds a Config from the server's autosave settings.
func ConfigFromSeconds(wait int, basedOnInput bool) Config {
	return Config{Wait: time.Duration(wait) * time.Second, BasedOnInput: basedOnInput}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithClock(c Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l.Named("Autosave")
		}
	}
}

// WithDraft resumes an existing draft instead of starting a new one.
func WithDraft(id uint64, ownerToken string) Option {
	return func(s *Synchronizer) {
		s.draftID = id
		s.ownerToken = ownerToken
	}
}

func WithEditSessionToken(token string) Option {
	return func(s *Synchronizer) { s.editToken = token }
}

func WithForm(f Form) Option {
	return func(s *Synchronizer) { s.form = f }
}

// OnStateChange registers fn to run after every transition. err is set when the
// new state is StateError.
func OnStateChange(fn func(state State, err error)) Option {
	return func(s *Synchronizer) { s.hook = fn }
}

type transition struct {
	state State
	err   error
}

// Synchronizer owns one draft editing session: the form, the autosave timer, the
// owner token and the draft id. At most one save is in flight at a time and a failed
// save is never retried without a further edit.
type Synchronizer struct {
	saver  Saver
	cfg    Config
	clock  Clock
	logger *zap.Logger
	hook   func(State, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	form       Form
	draftID    uint64
	ownerToken string
	editToken  string
	timer      Timer
	timerGen   uint64
	dirty      bool
	lastErr    error
	closed     bool
	pending    []transition
}

// New starts a session. The owner token defaults to a fresh one when WithDraft does
// not supply it.
func New(saver Saver, cfg Config, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		saver:  saver,
		cfg:    cfg,
		clock:  RealClock(),
		logger: zap.NewNop(),
		state:  StateUnchanged,
	}
	for _, o := range opts {
		o(s)
	}
	if s.ownerToken == "" {
		s.ownerToken = draft.NewOwnerToken()
	}
	if s.form.CaptureStartTime.IsZero() {
		s.form.CaptureStartTime = s.clock.Now()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DraftID is the id of the last successful save, zero before the first one.
func (s *Synchronizer) DraftID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftID
}

func (s *Synchronizer) OwnerToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerToken
}

// Err is the failure behind the current StateError.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Form returns a copy of the current form.
func (s *Synchronizer) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyForm(s.form)
}

// SetEditSessionToken replaces the token sent with later saves.
func (s *Synchronizer) SetEditSessionToken(token string) {
	s.mu.Lock()
	s.editToken = token
	s.mu.Unlock()
}

// Edit applies change to the form. Edits to tracked fields mark the session changed
// and arm the autosave timer; an edit landing while a save is in flight is picked up
// once that save resolves.
func (s *Synchronizer) Edit(field Field, change func(*Form)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if change != nil {
		change(&s.form)
	}
	if field.Tracked() {
		switch s.state {
		case StateSaving:
			s.dirty = true
		case StateChanged:
			if s.cfg.BasedOnInput {
				s.armLocked()
			}
		default:
			s.setLocked(StateChanged, nil)
			s.armLocked()
		}
	}
	s.unlockAndNotify()
}

// Save sends the current form now. It only runs from StateChanged: a session already
// saving returns ErrSaveInProgress and anything else ErrNothingToSave.
func (s *Synchronizer) Save(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.state == StateSaving:
		s.mu.Unlock()
		return ErrSaveInProgress
	case s.state != StateChanged:
		s.mu.Unlock()
		return ErrNothingToSave
	}
	s.stopLocked()
	req := s.requestLocked()
	s.dirty = false
	s.setLocked(StateSaving, nil)
	s.unlockAndNotify()

	id, err := s.saver.Save(ctx, req)
	if err == nil && id == 0 {
		err = ErrNoDraftID
	}

	s.mu.Lock()
	if err != nil {
		s.logger.Warn("draft save failed", zap.Uint64("draft_id", req.DraftID), zap.Error(err))
		s.setLocked(StateError, err)
	} else {
		if s.draftID != id && s.draftID != 0 {
			s.logger.Info("draft saved under a new id", zap.Uint64("old", s.draftID), zap.Uint64("new", id))
		}
		s.draftID = id
		s.setLocked(StateSaved, nil)
	}
	if s.dirty && !s.closed {
		s.dirty = false
		s.setLocked(StateChanged, nil)
		s.armLocked()
	}
	s.unlockAndNotify()
	return err
}

// Close stops the timer and cancels a save started by it. Later edits are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

func (s *Synchronizer) armLocked() {
	if s.cfg.Wait <= 0 {
		return
	}
	if s.timer != nil {
		if !s.cfg.BasedOnInput {
			return
		}
		s.stopLocked()
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.cfg.Wait, func() { s.fire(gen) })
}

func (s *Synchronizer) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Synchronizer) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.Save(s.ctx); err != nil && !errors.Is(err, ErrNothingToSave) && !errors.Is(err, ErrSaveInProgress) {
		s.logger.Debug("autosave did not complete", zap.Error(err))
	}
}

func (s *Synchronizer) requestLocked() *Request {
	f := &s.form
	req := &Request{
		DraftToken:         s.ownerToken,
		EditSessionToken:   s.editToken,
		DraftID:            s.draftID,
		DocumentRef:        optional(f.DocumentRef),
		SectionRef:         optional(f.SectionRef),
		CaptureStartTime:   f.CaptureStartTime,
		SourceRevisionTime: f.SourceRevisionTime,
		ScrollPosition:     f.ScrollPosition,
		Content:            f.Text,
		SummaryText:        f.Summary,
		IsMinorEdit:        f.IsMinorEdit,
		IsStructuredForm:   f.Structured,
	}
	if f.Structured {
		req.Content = formpath.Parse(f.Fields)
	}
	return req
}

func (s *Synchronizer) setLocked(state State, err error) {
	s.state = state
	s.lastErr = err
	s.pending = append(s.pending, transition{state: state, err: err})
}

// unlockAndNotify releases the lock, then runs the hook for every queued transition.
func (s *Synchronizer) unlockAndNotify() {
	pending := s.pending
	s.pending = nil
	hook := s.hook
	s.mu.Unlock()
	if hook == nil {
		return
	}
	for _, t := range pending {
		hook(t.state, t.err)
	}
}

func copyForm(f Form) Form {
	if f.Fields != nil {
		f.Fields = append([]formpath.Field(nil), f.Fields...)
	}
	if f.SourceRevisionTime != nil {
		t := *f.SourceRevisionTime
		f.SourceRevisionTime = &t
	}
	return f
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
