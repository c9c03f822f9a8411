package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/pkg/formpath"
)

const wait = time.Minute

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State, _ error) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func newSync(t *testing.T, cfg Config, saver *fakeSaver, opts ...Option) (*Synchronizer, *fakeClock, *stateLog) {
	t.Helper()
	clock := newFakeClock()
	log := &stateLog{}
	opts = append([]Option{
		WithClock(clock),
		WithEditSessionToken("edit-token"),
		WithForm(Form{DocumentRef: "Main Page"}),
		OnStateChange(log.record),
	}, opts...)
	s := New(saver, cfg, opts...)
	t.Cleanup(s.Close)
	return s, clock, log
}

func setText(text string) func(*Form) {
	return func(f *Form) { f.Text = text }
}

func TestSynchronizerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("starts unchanged with nothing to save", func(t *testing.T) {
		s, clock, _ := newSync(t, Config{Wait: wait}, &fakeSaver{})
		assert.Equal(t, StateUnchanged, s.State())
		assert.ErrorIs(t, s.Save(ctx), ErrNothingToSave)
		assert.Zero(t, clock.Pending())
		assert.Len(t, s.OwnerToken(), 32)
	})

	t.Run("autosave captures the id and reuses it", func(t *testing.T) {
		saver := &fakeSaver{results: []saveResult{{id: 41}, {id: 41}}}
		s, clock, log := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldText, setText("first"))
		assert.Equal(t, StateChanged, s.State())
		assert.Equal(t, 1, clock.Pending())

		clock.Advance(wait)
		assert.Equal(t, StateSaved, s.State())
		assert.EqualValues(t, 41, s.DraftID())

		s.Edit(FieldSummary, func(f *Form) { f.Summary = "typo" })
		clock.Advance(wait)

		reqs := saver.Requests()
		require.Len(t, reqs, 2)
		assert.Zero(t, reqs[0].DraftID)
		assert.EqualValues(t, 41, reqs[1].DraftID)
		assert.Equal(t, "first", reqs[0].Content)
		assert.Equal(t, "typo", reqs[1].SummaryText)
		assert.Equal(t, s.OwnerToken(), reqs[0].DraftToken)
		assert.Equal(t, "edit-token", reqs[0].EditSessionToken)
		require.NotNil(t, reqs[0].DocumentRef)
		assert.Equal(t, "Main Page", *reqs[0].DocumentRef)
		assert.Nil(t, reqs[0].SectionRef)
		assert.Equal(t, clock.Now().Add(-2*wait), reqs[0].CaptureStartTime)

		assert.Equal(t, []State{
			StateChanged, StateSaving, StateSaved,
			StateChanged, StateSaving, StateSaved,
		}, log.get())
	})

	t.Run("scroll is captured but never marks changes", func(t *testing.T) {
		saver := &fakeSaver{}
		s, clock, log := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldScroll, func(f *Form) { f.ScrollPosition = 120 })
		assert.Equal(t, StateUnchanged, s.State())
		assert.Zero(t, clock.Pending())
		assert.Empty(t, log.get())

		s.Edit(FieldMinorEdit, func(f *Form) { f.IsMinorEdit = true })
		require.NoError(t, s.Save(ctx))
		req := saver.Requests()[0]
		assert.Equal(t, 120, req.ScrollPosition)
		assert.True(t, req.IsMinorEdit)
	})

	t.Run("manual save cancels the pending timer", func(t *testing.T) {
		saver := &fakeSaver{}
		s, clock, _ := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldText, setText("x"))
		require.NoError(t, s.Save(ctx))
		assert.Zero(t, clock.Pending())
		clock.Advance(wait)
		assert.Len(t, saver.Requests(), 1)
		assert.ErrorIs(t, s.Save(ctx), ErrNothingToSave)
	})

	t.Run("structured forms are flattened", func(t *testing.T) {
		saver := &fakeSaver{}
		s, _, _ := newSync(t, Config{}, saver)

		s.Edit(FieldStructured, func(f *Form) {
			f.Structured = true
			f.Fields = []formpath.Field{
				{Name: "Person[name]", Value: "Ada"},
				{Name: "Person[born]", Value: "1815"},
			}
		})
		require.NoError(t, s.Save(ctx))

		req := saver.Requests()[0]
		assert.True(t, req.IsStructuredForm)
		node, ok := req.Content.(*formpath.Node)
		require.True(t, ok)
		v, ok := node.Lookup("Person", "name")
		require.True(t, ok)
		assert.Equal(t, "Ada", v)
	})
}

func TestSynchronizerTimerModes(t *testing.T) {
	t.Run("fixed interval does not rearm on later edits", func(t *testing.T) {
		saver := &fakeSaver{}
		s, clock, _ := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldText, setText("a"))
		clock.Advance(30 * time.Second)
		s.Edit(FieldText, setText("ab"))
		assert.Equal(t, 1, clock.Pending())

		clock.Advance(30 * time.Second)
		require.Len(t, saver.Requests(), 1)
		assert.Equal(t, "ab", saver.Requests()[0].Content)
		assert.Equal(t, StateSaved, s.State())
	})

	t.Run("input based waits for the last edit", func(t *testing.T) {
		saver := &fakeSaver{}
		s, clock, _ := newSync(t, Config{Wait: wait, BasedOnInput: true}, saver)

		s.Edit(FieldText, setText("a"))
		clock.Advance(30 * time.Second)
		s.Edit(FieldText, setText("ab"))
		assert.Equal(t, 1, clock.Pending())

		clock.Advance(30 * time.Second)
		assert.Empty(t, saver.Requests())
		assert.Equal(t, StateChanged, s.State())

		clock.Advance(30 * time.Second)
		require.Len(t, saver.Requests(), 1)
		assert.Equal(t, StateSaved, s.State())
	})

	t.Run("non-positive wait leaves manual saves only", func(t *testing.T) {
		for _, cfg := range []Config{{}, {Wait: -time.Second, BasedOnInput: true}} {
			saver := &fakeSaver{}
			s, clock, _ := newSync(t, cfg, saver)
			s.Edit(FieldText, setText("a"))
			assert.Zero(t, clock.Pending())
			clock.Advance(time.Hour)
			assert.Empty(t, saver.Requests())
			require.NoError(t, s.Save(context.Background()))
			assert.Equal(t, StateSaved, s.State())
		}
	})

	t.Run("config from seconds", func(t *testing.T) {
		assert.Equal(t, Config{Wait: 2 * time.Minute, BasedOnInput: true}, ConfigFromSeconds(120, true))
	})
}

func TestSynchronizerFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("failure is not retried", func(t *testing.T) {
		saver := &fakeSaver{results: []saveResult{{err: boom}}}
		s, clock, _ := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldText, setText("a"))
		clock.Advance(wait)
		assert.Equal(t, StateError, s.State())
		assert.ErrorIs(t, s.Err(), boom)
		assert.Zero(t, s.DraftID())

		clock.Advance(10 * wait)
		assert.Len(t, saver.Requests(), 1)
		assert.ErrorIs(t, s.Save(ctx), ErrNothingToSave)

		s.Edit(FieldText, setText("ab"))
		assert.Equal(t, StateChanged, s.State())
		clock.Advance(wait)
		assert.Equal(t, StateSaved, s.State())
		assert.Len(t, saver.Requests(), 2)
	})

	t.Run("a reply without an id is a failure", func(t *testing.T) {
		saver := &fakeSaver{results: []saveResult{{id: 0}}}
		s, _, _ := newSync(t, Config{}, saver)
		s.Edit(FieldText, setText("a"))
		assert.ErrorIs(t, s.Save(ctx), ErrNoDraftID)
		assert.Equal(t, StateError, s.State())
	})

	t.Run("one save in flight", func(t *testing.T) {
		saver := &fakeSaver{
			results: []saveResult{{id: 7}},
			gate:    make(chan struct{}),
			started: make(chan struct{}, 1),
		}
		s, clock, log := newSync(t, Config{Wait: wait}, saver)

		s.Edit(FieldText, setText("a"))
		done := make(chan error, 1)
		go func() { done <- s.Save(ctx) }()
		<-saver.started

		assert.Equal(t, StateSaving, s.State())
		assert.ErrorIs(t, s.Save(ctx), ErrSaveInProgress)
		s.Edit(FieldText, setText("ab"))
		assert.Equal(t, StateSaving, s.State())

		close(saver.gate)
		require.NoError(t, <-done)

		assert.EqualValues(t, 7, s.DraftID())
		assert.Equal(t, StateChanged, s.State())
		assert.Equal(t, 1, clock.Pending())
		assert.Equal(t, []State{StateChanged, StateSaving, StateSaved, StateChanged}, log.get())
		assert.Len(t, saver.Requests(), 1)
		assert.Equal(t, "ab", s.Form().Text)
	})

	t.Run("closed sessions ignore edits", func(t *testing.T) {
		saver := &fakeSaver{}
		s, clock, _ := newSync(t, Config{Wait: wait}, saver)
		s.Edit(FieldText, setText("a"))
		s.Close()

		assert.Zero(t, clock.Pending())
		clock.Advance(wait)
		assert.Empty(t, saver.Requests())
		s.Edit(FieldText, setText("b"))
		assert.Equal(t, "a", s.Form().Text)
		assert.ErrorIs(t, s.Save(ctx), ErrClosed)
	})

	t.Run("resumed draft keeps its id and token", func(t *testing.T) {
		saver := &fakeSaver{results: []saveResult{{id: 99}}}
		s, _, _ := newSync(t, Config{}, saver, WithDraft(5, "0123456789abcdef0123456789abcdef"))
		s.Edit(FieldText, setText("a"))
		require.NoError(t, s.Save(ctx))

		req := saver.Requests()[0]
		assert.EqualValues(t, 5, req.DraftID)
		assert.Equal(t, "0123456789abcdef0123456789abcdef", req.DraftToken)
		assert.EqualValues(t, 99, s.DraftID())
	})
}
