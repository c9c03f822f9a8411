package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/pkg/pagination"
	"github.com/mx-space/drafts/internal/pkg/response"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrTargetExists = errors.New("a document with that title already exists")
	ErrEmptyTitle   = errors.New("document title is required")
)

// Service is the page store drafts are written against. It resolves refs for
// staleness checks, publishes revisions, and tells listeners about renames and
// publishes once they are committed.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []draft.DocumentEvents
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("DocumentService")
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, logger: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddListener registers l for rename and publish notifications.
func (s *Service) AddListener(l draft.DocumentEvents) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Service) snapshotListeners() []draft.DocumentEvents {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]draft.DocumentEvents(nil), s.listeners...)
}

// Get returns the page titled ref, or nil when there is none.
func (s *Service) Get(ctx context.Context, ref string) (*models.PageModel, error) {
	var p models.PageModel
	if err := s.db.WithContext(ctx).Where("title = ?", ref).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// LookupDocument implements draft.DocumentLookup.
func (s *Service) LookupDocument(ctx context.Context, ref string) (*draft.DocumentInfo, error) {
	p, err := s.Get(ctx, ref)
	if err != nil || p == nil {
		return nil, err
	}
	return &draft.DocumentInfo{Ref: p.Title, LatestRevisionAt: p.LatestRevisionAt}, nil
}

// PublishRevision stores a new revision of req.Ref, creating the page on its first
// revision. Listeners hear about it after the commit.
func (s *Service) PublishRevision(ctx context.Context, req draft.PublishRequest) error {
	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		return ErrEmptyTitle
	}
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var page models.PageModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("title = ?", ref).First(&page).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			page = models.PageModel{Title: ref}
			if err := tx.Create(&page).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		rev := models.PageRevisionModel{
			PageID:      page.ID,
			AuthorID:    req.AuthorID,
			Text:        req.Text,
			Summary:     req.Summary,
			IsMinorEdit: req.IsMinorEdit,
			PublishedAt: now,
		}
		if req.DraftID != 0 {
			id := req.DraftID
			rev.DraftID = &id
		}
		if err := tx.Create(&rev).Error; err != nil {
			return err
		}
		return tx.Model(&models.PageModel{}).Where("id = ?", page.ID).Updates(map[string]interface{}{
			"text":               req.Text,
			"latest_revision_at": now,
			"revision_count":     gorm.Expr("revision_count + 1"),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("publish %q: %w", ref, err)
	}

	var draftID *uint64
	if req.DraftID != 0 {
		id := req.DraftID
		draftID = &id
	}
	for _, l := range s.snapshotListeners() {
		if err := l.OnPublished(ctx, ref, req.AuthorID, draftID); err != nil {
			s.logger.Error("publish listener failed", zap.String("ref", ref), zap.Error(err))
		}
	}
	return nil
}

// Move renames the page oldRef to newRef and tells listeners.
func (s *Service) Move(ctx context.Context, oldRef, newRef string) error {
	oldRef, newRef = strings.TrimSpace(oldRef), strings.TrimSpace(newRef)
	if oldRef == "" || newRef == "" {
		return ErrEmptyTitle
	}
	if oldRef == newRef {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.PageModel{}).Where("title = ?", newRef).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrTargetExists
		}
		res := tx.Model(&models.PageModel{}).Where("title = ?", oldRef).Update("title", newRef)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("document moved", zap.String("old", oldRef), zap.String("new", newRef))
	for _, l := range s.snapshotListeners() {
		if err := l.OnRenamed(ctx, oldRef, newRef); err != nil {
			s.logger.Error("rename listener failed", zap.String("old", oldRef), zap.String("new", newRef), zap.Error(err))
		}
	}
	return nil
}

// Revisions lists ref's revisions, newest first.
func (s *Service) Revisions(ctx context.Context, ref string, q pagination.Query) ([]models.PageRevisionModel, response.Pagination, error) {
	p, err := s.Get(ctx, ref)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	if p == nil {
		return nil, response.Pagination{}, ErrNotFound
	}
	var items []models.PageRevisionModel
	query := s.db.WithContext(ctx).Model(&models.PageRevisionModel{}).
		Where("page_id = ?", p.ID).
		Order("published_at DESC")
	meta, err := pagination.Paginate(query, q, &items)
	return items, meta, err
}
