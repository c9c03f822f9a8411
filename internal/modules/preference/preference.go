package preference

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/pkg/response"
)

const draftsEnableKey = "drafts_enable"

// OptionStore reads and writes rows of the options table.
type OptionStore interface {
	// Get returns ok=false when the option was never written.
	Get(ctx context.Context, name string) (value string, ok bool, err error)
	Put(ctx context.Context, name, value string) error
}

// GormOptions is the options table.
type GormOptions struct{ db *gorm.DB }

func NewGormOptions(db *gorm.DB) *GormOptions { return &GormOptions{db: db} }

func (s *GormOptions) Get(ctx context.Context, name string) (string, bool, error) {
	var opt models.OptionModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return opt.Value, true, nil
}

func (s *GormOptions) Put(ctx context.Context, name, value string) error {
	opt := models.OptionModel{Name: name, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

// Service holds per-user preferences. Values are cached after the first read.
type Service struct {
	store OptionStore
	mu    sync.RWMutex
	cache map[string]bool
}

func NewService(store OptionStore) *Service {
	return &Service{store: store, cache: make(map[string]bool)}
}

func optionName(key, userID string) string { return key + ":" + userID }

// DraftsEnabled reports whether userID keeps drafts. Users who never chose are on.
func (s *Service) DraftsEnabled(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	v, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	raw, found, err := s.store.Get(ctx, optionName(draftsEnableKey, userID))
	if err != nil {
		return false, err
	}
	enabled := true
	if found {
		if enabled, err = strconv.ParseBool(raw); err != nil {
			return false, fmt.Errorf("option %s for %s: %w", draftsEnableKey, userID, err)
		}
	}

	s.mu.Lock()
	s.cache[userID] = enabled
	s.mu.Unlock()
	return enabled, nil
}

func (s *Service) SetDraftsEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := s.store.Put(ctx, optionName(draftsEnableKey, userID), strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[userID] = enabled
	s.mu.Unlock()
	return nil
}

type draftsPreference struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/preferences", authMW)
	g.GET("/drafts", h.getDrafts)
	g.PUT("/drafts", h.putDrafts)
}

func (h *Handler) getDrafts(c *gin.Context) {
	enabled, err := h.svc.DraftsEnabled(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"enabled": enabled})
}

func (h *Handler) putDrafts(c *gin.Context) {
	var body draftsPreference
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.SetDraftsEnabled(c.Request.Context(), middleware.CurrentUserID(c), *body.Enabled); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"enabled": *body.Enabled})
}
