package appointment

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/booking"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service *booking.Service
}

func NewHandler(service *booking.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("/token-preview", h.PreviewToken)
		appointments.POST("", auth.Optional(), h.Book)
	}

	signedIn := appointments.Group("", auth.Authenticate())
	{
		signedIn.GET("", auth.RequireStaff(), h.List)
		signedIn.POST("/walk-in", auth.RequireRoles(model.RoleAdmin, model.RoleDoctor), h.WalkIn)
		signedIn.POST("/:id/confirm", auth.RequireStaff(), h.Confirm)
		signedIn.POST("/:id/cancel", h.Cancel)
	}
}

type previewQuery struct {
	DoctorID string `form:"doctor_id" json:"doctor_id" binding:"required,uuid"`
	Date     string `form:"date" json:"date" binding:"required"`
	Slot     string `form:"slot" json:"slot" binding:"required"`
}

// PreviewToken reports the token the next booking would likely receive. It is
// advisory; the number is only reserved by Book.
func (h *Handler) PreviewToken(c *gin.Context) {
	var q previewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	preview, err := h.service.PreviewToken(c.Request.Context(), uuid.MustParse(q.DoctorID), q.Date, q.Slot)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, preview)
}

func (h *Handler) Book(c *gin.Context) {
	var req model.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	in := booking.Input{
		DoctorID: req.DoctorID,
		Date:     req.Date,
		Slot:     req.Slot,
		Guest:    req.Guest,
		Attendee: req.Attendee,
	}
	if actor, ok := middleware.ActorFrom(c); ok && actor.Role == model.RolePatient {
		in.PatientID = &actor.ID
	}

	result, err := h.service.Book(c.Request.Context(), in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, result)
}

func (h *Handler) WalkIn(c *gin.Context) {
	var req model.WalkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	result, err := h.service.WalkIn(c.Request.Context(), req.DoctorID, req.Guest)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, result)
}

type listQuery struct {
	DoctorID string `form:"doctor_id" json:"doctor_id" binding:"required,uuid"`
	Date     string `form:"date" json:"date" binding:"omitempty,datetime=2006-01-02"`
	Status   string `form:"status" json:"status" binding:"omitempty,oneof=PENDING CONFIRMED COMPLETED CANCELLED"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	filters := &model.AppointmentFilters{
		DoctorID: uuid.MustParse(q.DoctorID),
		Status:   model.AppointmentStatus(q.Status),
	}
	if q.Date != "" {
		day, err := model.ParseDate(q.Date)
		if err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid date", err))
			return
		}
		filters.Date = &day
	}

	appointments, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) Confirm(c *gin.Context) {
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	appointment, err := h.service.Confirm(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := appointmentID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	appointment, err := h.service.Cancel(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func appointmentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid appointment ID", err))
		return uuid.Nil, false
	}
	return id, true
}
