package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/identity"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *identity.Service
}

func NewHandler(svc *identity.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	group := r.Group("/auth")
	{
		group.POST("/otp", h.IssueOTP)
		group.POST("/otp/verify", h.VerifyOTP)
		group.POST("/staff/login", h.StaffLogin)
		group.GET("/me", auth.Authenticate(), h.Me)
	}
}

// IssueOTP sends a verification code to the phone. The code itself is never
// part of the response.
func (h *Handler) IssueOTP(c *gin.Context) {
	var req model.IssueOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	code, err := h.svc.IssueOTP(c.Request.Context(), req.Phone)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, code)
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req model.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	result, err := h.svc.VerifyOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) StaffLogin(c *gin.Context) {
	var req model.StaffLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithBindError(c, err)
		return
	}

	result, err := h.svc.StaffLogin(c.Request.Context(), req.DisplayCode, req.Passcode)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) Me(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	identity, err := h.svc.GetIdentity(c.Request.Context(), actor.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, identity)
}
