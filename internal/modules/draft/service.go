package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/pkg/formpath"
	"github.com/mx-space/drafts/internal/pkg/markdown"
	"github.com/mx-space/drafts/internal/pkg/metrics"
)

var (
	ErrTokenRejected  = errors.New("edit token rejected")
	ErrDraftsDisabled = errors.New("drafts are disabled for this user")
	ErrDraftNotFound  = errors.New("draft not found")
	ErrNoDocument     = errors.New("draft has no target document")
	ErrInvalidDraft   = errors.New("invalid draft")
)

// Actor is the signed-in user a request acts for.
type Actor struct {
	UserID    string
	SessionID string
}

// EditTokenVerifier checks the per-session edit token sent with a save.
type EditTokenVerifier interface {
	VerifyEditToken(ctx context.Context, actor Actor, token string) (bool, error)
}

// Preferences reports whether a user has drafts switched on.
type Preferences interface {
	DraftsEnabled(ctx context.Context, userID string) (bool, error)
}

// DocumentLookup resolves a document ref. A missing document is (nil, nil).
type DocumentLookup interface {
	LookupDocument(ctx context.Context, ref string) (*DocumentInfo, error)
}

// PublishRequest asks the host to publish a new revision from a draft.
type PublishRequest struct {
	Ref         string
	AuthorID    string
	Text        string
	Summary     string
	IsMinorEdit bool
	DraftID     uint64
}

// DocumentPublisher publishes document revisions. Implementations notify
// DocumentEvents.OnPublished once the revision is stored.
type DocumentPublisher interface {
	PublishRevision(ctx context.Context, req PublishRequest) error
}

// DocumentEvents receives host document lifecycle notifications. Both calls are
// idempotent.
type DocumentEvents interface {
	OnRenamed(ctx context.Context, oldRef, newRef string) error
	OnPublished(ctx context.Context, ref, ownerID string, draftID *uint64) error
}

// AutosaveSettings is the client autosave configuration, in seconds.
type AutosaveSettings struct {
	AutoSaveWait         int  `json:"autoSaveWait"`
	AutoSaveTimeout      int  `json:"autoSaveTimeout"`
	AutoSaveBasedOnInput bool `json:"autoSaveBasedOnInput"`
}

// EditorConfig is what an editor needs before it starts autosaving.
type EditorConfig struct {
	AutosaveSettings
	Enabled    bool   `json:"enabled"`
	DraftToken string `json:"draftToken"`
}

// SaveRequest carries one autosave or manual save.
type SaveRequest struct {
	DraftToken         string
	EditSessionToken   string
	DraftID            uint64
	DocumentRef        *string
	SectionRef         *string
	CaptureStartTime   time.Time
	SourceRevisionTime *time.Time
	ScrollPosition     int
	Text               string
	Form               *formpath.Node
	Fields             []formpath.Field
	Summary            string
	IsMinorEdit        bool
	IsStructuredForm   bool
}

// View is a draft with its staleness against the current document.
type View struct {
	Draft models.DraftModel
	Stale bool
}

type Service struct {
	store     Store
	verifier  EditTokenVerifier
	prefs     Preferences
	documents DocumentLookup
	publisher DocumentPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	autosave  AutosaveSettings
	lifeSpan  time.Duration
	now       func() time.Time
}

// ServiceOption configures a draft Service.
type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("DraftService")
		}
	}
}

func WithTokenVerifier(v EditTokenVerifier) ServiceOption {
	return func(s *Service) { s.verifier = v }
}

func WithPreferences(p Preferences) ServiceOption {
	return func(s *Service) { s.prefs = p }
}

func WithDocuments(l DocumentLookup) ServiceOption {
	return func(s *Service) { s.documents = l }
}

func WithPublisher(p DocumentPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithAutosave(cfg AutosaveSettings) ServiceOption {
	return func(s *Service) { s.autosave = cfg }
}

// WithLifeSpan sets how long an untouched draft is kept. Zero keeps drafts forever.
func WithLifeSpan(d time.Duration) ServiceOption {
	return func(s *Service) { s.lifeSpan = d }
}

func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, logger: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewOwnerToken returns a random 32 character hex token.
func NewOwnerToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EditorConfig returns the autosave settings for actor together with a fresh owner
// token for a new draft.
func (s *Service) EditorConfig(ctx context.Context, actor Actor) (*EditorConfig, error) {
	enabled, err := s.enabled(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return &EditorConfig{
		AutosaveSettings: s.autosave,
		Enabled:          enabled,
		DraftToken:       NewOwnerToken(),
	}, nil
}

func (s *Service) enabled(ctx context.Context, userID string) (bool, error) {
	if s.prefs == nil {
		return true, nil
	}
	ok, err := s.prefs.DraftsEnabled(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load drafts preference: %w", err)
	}
	return ok, nil
}

// Save verifies the edit token and stores the draft, returning its id. A draft id that
// does not resolve to one of actor's drafts is saved under a new id.
func (s *Service) Save(ctx context.Context, actor Actor, req SaveRequest) (uint64, error) {
	log := s.logger.With(zap.String("user_id", actor.UserID), zap.Uint64("draft_id", req.DraftID))

	if s.verifier != nil {
		ok, err := s.verifier.VerifyEditToken(ctx, actor, req.EditSessionToken)
		if err != nil {
			return 0, fmt.Errorf("verify edit token: %w", err)
		}
		if !ok {
			s.metrics.AddSave(metrics.SaveTokenRejected)
			log.Warn("draft save rejected: edit token mismatch")
			return 0, ErrTokenRejected
		}
	}

	enabled, err := s.enabled(ctx, actor.UserID)
	if err != nil {
		return 0, err
	}
	if !enabled {
		s.metrics.AddSave(metrics.SaveDisabled)
		return 0, ErrDraftsDisabled
	}

	d, err := s.buildDraft(actor, req)
	if err != nil {
		s.metrics.AddSave(metrics.SaveInvalid)
		return 0, err
	}

	id, err := s.store.Save(ctx, d)
	if err != nil {
		s.metrics.AddSave(metrics.SaveStorageError)
		log.Error("draft save failed", zap.Error(err))
		return 0, err
	}
	s.metrics.AddSave(metrics.SaveOK)
	if req.DraftID != 0 && id != req.DraftID {
		log.Info("draft id no longer resolves, saved as new draft", zap.Uint64("new_id", id))
	}
	return id, nil
}

func (s *Service) buildDraft(actor Actor, req SaveRequest) (*models.DraftModel, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidDraft)
	}

	content := models.TextContent(req.Text)
	if req.IsStructuredForm {
		form, err := structuredForm(req)
		if err != nil {
			return nil, err
		}
		content = models.FormContent(form)
	}

	token := req.DraftToken
	if token == "" {
		token = NewOwnerToken()
	}
	capture := req.CaptureStartTime
	if capture.IsZero() {
		capture = s.now()
	}

	return &models.DraftModel{
		ID:                 req.DraftID,
		OwnerID:            actor.UserID,
		DocumentRef:        nonEmpty(req.DocumentRef),
		SectionRef:         nonEmpty(req.SectionRef),
		CaptureStartTime:   capture,
		SourceRevisionTime: req.SourceRevisionTime,
		ScrollPosition:     req.ScrollPosition,
		Content:            content,
		Summary:            req.Summary,
		IsMinorEdit:        req.IsMinorEdit,
		OwnerToken:         token,
	}, nil
}

// structuredForm resolves a structured save to its field tree: a pre-flattened form,
// raw field pairs, or the serialized [{"name","value"}] array sent as the text body.
func structuredForm(req SaveRequest) (*formpath.Node, error) {
	if req.Form != nil {
		return req.Form, nil
	}
	fields := req.Fields
	if len(fields) == 0 && strings.TrimSpace(req.Text) != "" {
		decoded, err := formpath.DecodeFields([]byte(req.Text))
		if err != nil {
			return nil, fmt.Errorf("%w: structured content is not a field list: %v", ErrInvalidDraft, err)
		}
		fields = decoded
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: structured draft has no fields", ErrInvalidDraft)
	}
	return formpath.Parse(fields), nil
}

// Load returns actor's draft, or nil when the id does not resolve to one.
func (s *Service) Load(ctx context.Context, actor Actor, id uint64) (*View, error) {
	d, err := s.store.Load(ctx, id)
	if err != nil || d == nil {
		return nil, err
	}
	if d.OwnerID != actor.UserID {
		return nil, nil
	}
	views, err := s.views(ctx, []models.DraftModel{*d})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) Discard(ctx context.Context, actor Actor, id uint64) error {
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Discard(ctx, id, actor.UserID); err != nil {
		return err
	}
	if d != nil && d.OwnerID == actor.UserID {
		s.metrics.AddDiscards(metrics.DiscardUser, 1)
	}
	return nil
}

// ListForDocument returns every draft of ref in creation order.
func (s *Service) ListForDocument(ctx context.Context, ref string) ([]View, error) {
	items, err := s.store.ListByDocument(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

// ListMine returns all of actor's drafts.
func (s *Service) ListMine(ctx context.Context, actor Actor) ([]View, error) {
	items, err := s.store.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

func (s *Service) Count(ctx context.Context, ref string) (int64, error) {
	return s.store.Count(ctx, ref)
}

func (s *Service) views(ctx context.Context, items []models.DraftModel) ([]View, error) {
	docs := make(map[string]*DocumentInfo)
	out := make([]View, 0, len(items))
	for _, d := range items {
		v := View{Draft: d}
		if ref := d.Ref(); ref != "" && s.documents != nil {
			doc, seen := docs[ref]
			if !seen {
				var err error
				doc, err = s.documents.LookupDocument(ctx, ref)
				if err != nil {
					return nil, fmt.Errorf("lookup document %q: %w", ref, err)
				}
				docs[ref] = doc
			}
			v.Stale = IsStale(&d, doc)
		}
		out = append(out, v)
	}
	return out, nil
}

// OnRenamed moves every draft of oldRef to newRef.
func (s *Service) OnRenamed(ctx context.Context, oldRef, newRef string) error {
	if oldRef == "" || newRef == "" || oldRef == newRef {
		return nil
	}
	n, err := s.store.Move(ctx, oldRef, newRef)
	if err != nil {
		s.logger.Error("move drafts failed", zap.String("old", oldRef), zap.String("new", newRef), zap.Error(err))
		return err
	}
	s.metrics.AddMoved(n)
	s.logger.Info("drafts moved", zap.String("old", oldRef), zap.String("new", newRef), zap.Int64("count", n))
	return nil
}

// OnPublished discards the draft the revision was published from, then every other
// draft the owner kept for the document.
func (s *Service) OnPublished(ctx context.Context, ref, ownerID string, draftID *uint64) error {
	var discarded int64
	if draftID != nil && *draftID != 0 {
		d, err := s.store.Load(ctx, *draftID)
		if err != nil {
			return err
		}
		if err := s.store.Discard(ctx, *draftID, ownerID); err != nil {
			return err
		}
		if d != nil && d.OwnerID == ownerID {
			discarded++
		}
	}

	items, err := s.store.ListByDocumentAndOwner(ctx, ref, ownerID)
	if err != nil {
		return err
	}
	for _, d := range items {
		if err := s.store.Discard(ctx, d.ID, ownerID); err != nil {
			return err
		}
		discarded++
	}
	s.metrics.AddDiscards(metrics.DiscardPublished, discarded)
	s.logger.Debug("drafts discarded on publish", zap.String("ref", ref), zap.String("owner", ownerID), zap.Int64("count", discarded))
	return nil
}

// Publish finalizes the draft's document from its content.
func (s *Service) Publish(ctx context.Context, actor Actor, id uint64) (string, error) {
	if s.publisher == nil {
		return "", errors.New("no document publisher configured")
	}
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	if d == nil || d.OwnerID != actor.UserID {
		return "", ErrDraftNotFound
	}
	ref := d.Ref()
	if ref == "" {
		return "", ErrNoDocument
	}

	err = s.publisher.PublishRevision(ctx, PublishRequest{
		Ref:         ref,
		AuthorID:    actor.UserID,
		Text:        PageText(d.Content),
		Summary:     d.Summary,
		IsMinorEdit: d.IsMinorEdit,
		DraftID:     d.ID,
	})
	if err != nil {
		return "", fmt.Errorf("publish %q: %w", ref, err)
	}
	return ref, nil
}

// Preview renders the draft's page text to HTML.
func (s *Service) Preview(ctx context.Context, actor Actor, id uint64) (string, error) {
	d, err := s.store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	if d == nil || d.OwnerID != actor.UserID {
		return "", ErrDraftNotFound
	}
	return markdown.Render(PageText(d.Content)), nil
}

// PurgeExpired deletes drafts not saved within the configured life span.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	if s.lifeSpan <= 0 {
		return 0, nil
	}
	n, err := s.store.PurgeSavedBefore(ctx, s.now().Add(-s.lifeSpan))
	if err != nil {
		return 0, err
	}
	s.metrics.AddDiscards(metrics.DiscardPurged, n)
	if n > 0 {
		s.logger.Info("expired drafts purged", zap.Int64("count", n))
	}
	return n, nil
}

// PageText is the text a draft publishes as: the body itself, or the structured
// form replayed into template calls.
func PageText(c models.DraftContent) string {
	if c.IsStructured() {
		return formpath.Render(c.Form)
	}
	return c.Text
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}
