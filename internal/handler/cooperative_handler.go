package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type cooperativeService interface {
	Create(ctx context.Context, req models.CreateCooperativeRequest) (*models.Cooperative, error)
	Join(ctx context.Context, userID, cooperativeID string) (*models.Cooperative, error)
	ListAll(ctx context.Context) ([]models.Cooperative, error)
	Get(ctx context.Context, id string) (*models.Cooperative, error)
	Members(ctx context.Context, id string) ([]models.User, error)
}

// CooperativeHandler exposes the cooperative registry.
type CooperativeHandler struct {
	service cooperativeService
}

// NewCooperativeHandler constructs a CooperativeHandler.
func NewCooperativeHandler(svc cooperativeService) *CooperativeHandler {
	return &CooperativeHandler{service: svc}
}

// List godoc
// @Summary List cooperatives
// @Tags Cooperatives
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cooperatives [get]
func (h *CooperativeHandler) List(c *gin.Context) {
	coops, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coops, map[string]interface{}{"count": len(coops)})
}

// Create godoc
// @Summary Register a cooperative
// @Tags Cooperatives
// @Accept json
// @Produce json
// @Param payload body models.CreateCooperativeRequest true "Cooperative"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /cooperatives [post]
func (h *CooperativeHandler) Create(c *gin.Context) {
	var req models.CreateCooperativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid cooperative payload"))
		return
	}
	coop, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coop)
}

// Get godoc
// @Summary Cooperative detail
// @Tags Cooperatives
// @Produce json
// @Param id path string true "Cooperative ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /cooperatives/{id} [get]
func (h *CooperativeHandler) Get(c *gin.Context) {
	coop, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coop)
}

// Join godoc
// @Summary Join a cooperative
// @Tags Cooperatives
// @Produce json
// @Param id path string true "Cooperative ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /cooperatives/{id}/join [post]
func (h *CooperativeHandler) Join(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	coop, err := h.service.Join(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coop)
}

// Members godoc
// @Summary Cooperative members
// @Tags Cooperatives
// @Produce json
// @Param id path string true "Cooperative ID"
// @Success 200 {object} response.Envelope
// @Router /cooperatives/{id}/members [get]
func (h *CooperativeHandler) Members(c *gin.Context) {
	users, err := h.service.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles(users), map[string]interface{}{"count": len(users)})
}
