package document

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/pkg/pagination"
	"github.com/mx-space/drafts/internal/pkg/response"
)

type PublishDTO struct {
	Text        string `json:"text"`
	Summary     string `json:"summary"`
	IsMinorEdit bool   `json:"is_minor_edit"`
	// DraftID names the draft this revision was written in, if any.
	DraftID uint64 `json:"draft_id"`
}

type MoveDTO struct {
	To string `json:"to" binding:"required"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/documents", authMW)
	g.GET("/:ref", h.get)
	g.PUT("/:ref", h.publish)
	g.GET("/:ref/revisions", h.revisions)
	g.POST("/:ref/move", h.move)
}

func refParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("ref"))
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), refParam(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if p == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, p)
}

func (h *Handler) publish(c *gin.Context) {
	var dto PublishDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref := refParam(c)
	err := h.svc.PublishRevision(c.Request.Context(), draft.PublishRequest{
		Ref:         ref,
		AuthorID:    middleware.CurrentUserID(c),
		Text:        dto.Text,
		Summary:     dto.Summary,
		IsMinorEdit: dto.IsMinorEdit,
		DraftID:     dto.DraftID,
	})
	if err != nil {
		if errors.Is(err, ErrEmptyTitle) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	p, err := h.svc.Get(c.Request.Context(), ref)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, p)
}

func (h *Handler) revisions(c *gin.Context) {
	items, meta, err := h.svc.Revisions(c.Request.Context(), refParam(c), pagination.FromContext(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, meta)
}

func (h *Handler) move(c *gin.Context) {
	var dto MoveDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	to := strings.TrimSpace(dto.To)
	switch err := h.svc.Move(c.Request.Context(), refParam(c), to); {
	case err == nil:
		response.OK(c, gin.H{"title": to})
	case errors.Is(err, ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, ErrTargetExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrEmptyTitle):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
