package catalog

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/catalog"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service *catalog.Service
}

func NewHandler(service *catalog.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.GET("/catalog/:kind", auth.Authenticate(), auth.RequireStaff(), h.Search)
}

type searchQuery struct {
	Q     string `form:"q" json:"q" binding:"max=200"`
	Limit int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=50"`
}

// Search backs the medicine and lab test autocomplete.
func (h *Handler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	entries, err := h.service.Search(c.Request.Context(), model.CatalogKind(c.Param("kind")), q.Q, q.Limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
