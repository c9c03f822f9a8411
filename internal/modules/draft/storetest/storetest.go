// Package storetest holds the behaviour suite every draft.Store backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/pkg/formpath"
)

const (
	alice = "00000000-0000-0000-0000-00000000000a"
	bob   = "00000000-0000-0000-0000-00000000000b"
)

// Factory returns an empty store that stamps times with the given options.
type Factory func(t *testing.T, opts ...draft.StoreOption) draft.Store

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ref(s string) *string { return &s }

func newDraft(owner string, document *string, text string) *models.DraftModel {
	return &models.DraftModel{
		OwnerID:          owner,
		DocumentRef:      document,
		CaptureStartTime: epoch.Add(-time.Hour),
		Content:          models.TextContent(text),
		OwnerToken:       "0123456789abcdef0123456789abcdef",
	}
}

func ids(items []models.DraftModel) []uint64 {
	out := make([]uint64, 0, len(items))
	for _, d := range items {
		out = append(out, d.ID)
	}
	return out
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("load of a missing id is empty", func(t *testing.T) {
		store := newStore(t)
		d, err := store.Load(ctx, 4242)
		assert.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("save assigns an id then updates in place", func(t *testing.T) {
		store := newStore(t)
		d := newDraft(alice, ref("Main Page"), "first")
		id, err := store.Save(ctx, d)
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.Equal(t, id, d.ID)

		d.Content = models.TextContent("second")
		d.Summary = "typo"
		again, err := store.Save(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		again, err = store.Save(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		items, err := store.ListByDocument(ctx, "Main Page")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "second", items[0].Content.Text)
		assert.Equal(t, "typo", items[0].Summary)
	})

	t.Run("saved at is stamped by the store and never decreases", func(t *testing.T) {
		clock := NewClock(epoch)
		store := newStore(t, draft.WithClock(clock.Now))

		d := newDraft(alice, ref("Main Page"), "v1")
		d.SavedAt = epoch.Add(-240 * time.Hour)
		id, err := store.Save(ctx, d)
		require.NoError(t, err)
		assert.WithinDuration(t, epoch, d.SavedAt, time.Millisecond)

		clock.Advance(10 * time.Second)
		_, err = store.Save(ctx, d)
		require.NoError(t, err)
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.WithinDuration(t, epoch.Add(10*time.Second), loaded.SavedAt, time.Millisecond)

		clock.Set(epoch)
		_, err = store.Save(ctx, d)
		require.NoError(t, err)
		loaded, err = store.Load(ctx, id)
		require.NoError(t, err)
		assert.WithinDuration(t, epoch.Add(10*time.Second), loaded.SavedAt, time.Millisecond)
	})

	t.Run("an id owned by someone else is not overwritten", func(t *testing.T) {
		store := newStore(t)
		mine := newDraft(alice, ref("Main Page"), "alice")
		id, err := store.Save(ctx, mine)
		require.NoError(t, err)

		theirs := newDraft(bob, ref("Main Page"), "bob")
		theirs.ID = id
		other, err := store.Save(ctx, theirs)
		require.NoError(t, err)
		assert.NotEqual(t, id, other)

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, alice, loaded.OwnerID)
		assert.Equal(t, "alice", loaded.Content.Text)
	})

	t.Run("a discarded id is not resurrected", func(t *testing.T) {
		store := newStore(t)
		d := newDraft(alice, ref("Main Page"), "v1")
		id, err := store.Save(ctx, d)
		require.NoError(t, err)
		require.NoError(t, store.Discard(ctx, id, alice))

		next, err := store.Save(ctx, d)
		require.NoError(t, err)
		assert.NotEqual(t, id, next)

		gone, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("document ref is kept once set", func(t *testing.T) {
		store := newStore(t)
		d := newDraft(alice, ref("Main Page"), "v1")
		id, err := store.Save(ctx, d)
		require.NoError(t, err)

		d.DocumentRef = ref("Elsewhere")
		_, err = store.Save(ctx, d)
		require.NoError(t, err)
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Main Page", loaded.Ref())

		untitled := newDraft(alice, nil, "new page")
		id, err = store.Save(ctx, untitled)
		require.NoError(t, err)
		untitled.DocumentRef = ref("Fresh Page")
		_, err = store.Save(ctx, untitled)
		require.NoError(t, err)
		loaded, err = store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Fresh Page", loaded.Ref())
	})

	t.Run("discard is scoped to the owner", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, newDraft(bob, ref("Main Page"), "bob"))
		require.NoError(t, err)

		assert.NoError(t, store.Discard(ctx, id, alice))
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, loaded)

		assert.NoError(t, store.Discard(ctx, 9999, alice))

		assert.NoError(t, store.Discard(ctx, id, bob))
		assert.NoError(t, store.Discard(ctx, id, bob))
		loaded, err = store.Load(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("listing is scoped and in creation order", func(t *testing.T) {
		store := newStore(t)
		var want []uint64
		for _, d := range []*models.DraftModel{
			newDraft(alice, ref("A"), "1"),
			newDraft(bob, ref("B"), "2"),
			newDraft(bob, ref("A"), "3"),
			newDraft(alice, nil, "4"),
			newDraft(alice, ref("A"), "5"),
		} {
			id, err := store.Save(ctx, d)
			require.NoError(t, err)
			want = append(want, id)
		}

		// touching an older draft must not reorder it
		first, err := store.Load(ctx, want[0])
		require.NoError(t, err)
		_, err = store.Save(ctx, first)
		require.NoError(t, err)

		items, err := store.ListByDocument(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, []uint64{want[0], want[2], want[4]}, ids(items))

		items, err = store.ListByDocumentAndOwner(ctx, "A", alice)
		require.NoError(t, err)
		assert.Equal(t, []uint64{want[0], want[4]}, ids(items))

		items, err = store.ListByDocument(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []uint64{want[3]}, ids(items))

		items, err = store.ListByOwner(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, []uint64{want[1], want[2]}, ids(items))

		items, err = store.ListByDocument(ctx, "Nowhere")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("move retargets all and only matching drafts", func(t *testing.T) {
		store := newStore(t)
		a1, err := store.Save(ctx, newDraft(alice, ref("Old"), "1"))
		require.NoError(t, err)
		a2, err := store.Save(ctx, newDraft(bob, ref("Old"), "2"))
		require.NoError(t, err)
		b1, err := store.Save(ctx, newDraft(alice, ref("Other"), "3"))
		require.NoError(t, err)

		n, err := store.Move(ctx, "Old", "New")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		items, err := store.ListByDocument(ctx, "New")
		require.NoError(t, err)
		assert.Equal(t, []uint64{a1, a2}, ids(items))

		items, err = store.ListByDocument(ctx, "Old")
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = store.ListByDocument(ctx, "Other")
		require.NoError(t, err)
		assert.Equal(t, []uint64{b1}, ids(items))

		n, err = store.Move(ctx, "Missing", "Anything")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("readers never see a move half done", func(t *testing.T) {
		const total = 40
		store := newStore(t)
		for i := 0; i < total; i++ {
			_, err := store.Save(ctx, newDraft(alice, ref("Old"), "x"))
			require.NoError(t, err)
		}

		var (
			reads    atomic.Int64
			partial  atomic.Int64
			lost     atomic.Int64
			failures atomic.Int64
		)
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				oldN, errOld := store.Count(ctx, "Old")
				newN, errNew := store.Count(ctx, "New")
				reads.Add(1)
				if errOld != nil || errNew != nil {
					failures.Add(1)
					continue
				}
				if (oldN != 0 && oldN != total) || (newN != 0 && newN != total) {
					partial.Add(1)
				}
				// Old is read first and a move only goes one way, so together they
				// always cover every draft.
				if oldN+newN < total {
					lost.Add(1)
				}
			}
		}()

		require.Eventually(t, func() bool { return reads.Load() > 0 }, 5*time.Second, time.Millisecond)
		n, err := store.Move(ctx, "Old", "New")
		before := reads.Load()
		assert.Eventually(t, func() bool { return reads.Load() >= before+2 }, 5*time.Second, time.Millisecond)
		close(done)
		wg.Wait()
		require.NoError(t, err)

		assert.EqualValues(t, total, n)
		assert.Zero(t, failures.Load())
		assert.Zero(t, partial.Load(), "a reader saw some drafts moved and others not")
		assert.Zero(t, lost.Load(), "a reader saw fewer drafts than exist")

		moved, err := store.Count(ctx, "New")
		require.NoError(t, err)
		assert.EqualValues(t, total, moved)
	})

	t.Run("count", func(t *testing.T) {
		store := newStore(t)
		n, err := store.Count(ctx, "A")
		require.NoError(t, err)
		assert.Zero(t, n)

		for _, owner := range []string{alice, bob, alice} {
			_, err := store.Save(ctx, newDraft(owner, ref("A"), "x"))
			require.NoError(t, err)
		}
		_, err = store.Save(ctx, newDraft(alice, ref("B"), "x"))
		require.NoError(t, err)

		n, err = store.Count(ctx, "A")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("purge removes drafts saved before the cutoff", func(t *testing.T) {
		clock := NewClock(epoch)
		store := newStore(t, draft.WithClock(clock.Now))

		old, err := store.Save(ctx, newDraft(alice, ref("A"), "old"))
		require.NoError(t, err)
		clock.Advance(48 * time.Hour)
		recent, err := store.Save(ctx, newDraft(alice, ref("A"), "recent"))
		require.NoError(t, err)

		n, err := store.PurgeSavedBefore(ctx, epoch.Add(24*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		items, err := store.ListByDocument(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, []uint64{recent}, ids(items))
		gone, err := store.Load(ctx, old)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("structured content keeps its shape", func(t *testing.T) {
		store := newStore(t)
		form := formpath.Parse([]formpath.Field{
			{Name: "Recipe[Title]", Value: "Soup"},
			{Name: "Recipe[Steps][1]", Value: "Boil"},
			{Name: "pf_free_text", Value: "Notes"},
		})
		d := newDraft(alice, ref("Soup"), "")
		d.Content = models.FormContent(form)
		d.SectionRef = ref("2")
		d.ScrollPosition = 120
		d.IsMinorEdit = true
		src := epoch.Add(-2 * time.Hour)
		d.SourceRevisionTime = &src

		id, err := store.Save(ctx, d)
		require.NoError(t, err)
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, loaded)

		assert.True(t, loaded.Content.IsStructured())
		want, err := json.Marshal(form)
		require.NoError(t, err)
		got, err := json.Marshal(loaded.Content.Form)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))

		require.NotNil(t, loaded.SectionRef)
		assert.Equal(t, "2", *loaded.SectionRef)
		assert.Equal(t, 120, loaded.ScrollPosition)
		assert.True(t, loaded.IsMinorEdit)
		require.NotNil(t, loaded.SourceRevisionTime)
		assert.WithinDuration(t, src, *loaded.SourceRevisionTime, time.Second)
		assert.Equal(t, d.OwnerToken, loaded.OwnerToken)
	})
}
