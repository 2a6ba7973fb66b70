package consultation

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service *consultation.Service
}

func NewHandler(service *consultation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("/appointments/:id/consultation", auth.Authenticate(), auth.RequireRoles(model.RoleDoctor), h.Finalize)
	r.POST("/prescriptions/:id/dispense", auth.Authenticate(), auth.RequireRoles(model.RolePharmacy), h.Dispense)
	r.POST("/lab-requests/:id/complete", auth.Authenticate(), auth.RequireRoles(model.RoleLab), h.CompleteLabRequest)
}

// Finalize records the consultation, prescription and lab requests of an
// appointment in one transaction.
func (h *Handler) Finalize(c *gin.Context) {
	id, ok := pathID(c, "appointment")
	if !ok {
		return
	}

	var req model.FinalizeConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	record, err := h.service.Finalize(c.Request.Context(), id, actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, record)
}

func (h *Handler) Dispense(c *gin.Context) {
	id, ok := pathID(c, "prescription")
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	prescription, err := h.service.Dispense(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, prescription)
}

func (h *Handler) CompleteLabRequest(c *gin.Context) {
	id, ok := pathID(c, "lab request")
	if !ok {
		return
	}

	var req model.CompleteLabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	request, err := h.service.CompleteLabRequest(c.Request.Context(), id, actor, req.Result)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, request)
}

func pathID(c *gin.Context, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid "+resource+" ID", err))
		return uuid.Nil, false
	}
	return id, true
}
