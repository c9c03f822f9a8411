package draft

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/drafts", authMW)
	g.GET("", h.list)
	g.GET("/config", h.config)
	g.POST("/save", h.save)
	g.GET("/mine", h.mine)
	g.GET("/count", h.count)
	g.GET("/:id", h.get)
	g.GET("/:id/preview", h.preview)
	g.DELETE("/:id", h.discard)
	g.POST("/:id/publish", h.publish)
}

func actor(c *gin.Context) Actor {
	return Actor{
		UserID:    middleware.CurrentUserID(c),
		SessionID: middleware.CurrentSessionID(c),
	}
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid draft id")
		return 0, false
	}
	return id, true
}

func documentQuery(c *gin.Context) string {
	return strings.TrimSpace(c.Query("document"))
}

func (h *Handler) config(c *gin.Context) {
	cfg, err := h.svc.EditorConfig(c.Request.Context(), actor(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) save(c *gin.Context) {
	var dto SaveDraftDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req, err := dto.toRequest()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, err := h.svc.Save(c.Request.Context(), actor(c), req)
	switch {
	case err == nil:
		response.OK(c, saveResponse{ID: id})
	case errors.Is(err, ErrTokenRejected), errors.Is(err, ErrDraftsDisabled):
		response.ForbiddenMsg(c, err.Error())
	case errors.Is(err, ErrInvalidDraft):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) list(c *gin.Context) {
	ref := documentQuery(c)
	if ref == "" {
		response.BadRequest(c, "document is required")
		return
	}
	views, err := h.svc.ListForDocument(c.Request.Context(), ref)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(views, middleware.CurrentUserID(c)))
}

func (h *Handler) mine(c *gin.Context) {
	a := actor(c)
	views, err := h.svc.ListMine(c.Request.Context(), a)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(views, a.UserID))
}

func (h *Handler) count(c *gin.Context) {
	ref := documentQuery(c)
	if ref == "" {
		response.BadRequest(c, "document is required")
		return
	}
	n, err := h.svc.Count(c.Request.Context(), ref)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"document": ref, "count": n})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	a := actor(c)
	v, err := h.svc.Load(c.Request.Context(), a, id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if v == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(v, a.UserID))
}

func (h *Handler) preview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	html, err := h.svc.Preview(c.Request.Context(), actor(c), id)
	if err != nil {
		if errors.Is(err, ErrDraftNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"html": html})
}

func (h *Handler) discard(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Discard(c.Request.Context(), actor(c), id); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) publish(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ref, err := h.svc.Publish(c.Request.Context(), actor(c), id)
	switch {
	case err == nil:
		response.OK(c, gin.H{"document": ref})
	case errors.Is(err, ErrDraftNotFound):
		response.NotFound(c)
	case errors.Is(err, ErrNoDocument):
		response.UnprocessableEntity(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
