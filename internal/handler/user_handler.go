package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type userService interface {
	userLookup
	UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error)
	AssignRole(ctx context.Context, actor *models.User, userID, roleName string) (*models.User, error)
	Manage(ctx context.Context, agent *models.User, farmerID string) error
	ListFarmers(ctx context.Context, agentID string) ([]models.User, error)
	ListAgents(ctx context.Context, farmerID string) ([]models.User, error)
}

// UserHandler exposes the user directory.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Current user profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := currentUser(c, h.service)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, models.NewUserProfile(user))
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.NewUserProfile(user))
}

// UpdateMe godoc
// @Summary Update own profile
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me [patch]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid profile payload"))
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.NewUserProfile(user))
}

// Farmers godoc
// @Summary Farmers managed by an agent
// @Tags Users
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/farmers [get]
func (h *UserHandler) Farmers(c *gin.Context) {
	users, err := h.service.ListFarmers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles(users), map[string]interface{}{"count": len(users)})
}

// Agents godoc
// @Summary Agents managing a farmer
// @Tags Users
// @Produce json
// @Param id path string true "Farmer ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/agents [get]
func (h *UserHandler) Agents(c *gin.Context) {
	users, err := h.service.ListAgents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles(users), map[string]interface{}{"count": len(users)})
}

// Manage godoc
// @Summary Register a farmer under the current agent
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.ManageFarmerRequest true "Farmer"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /me/farmers [post]
func (h *UserHandler) Manage(c *gin.Context) {
	agent, ok := currentUser(c, h.service)
	if !ok {
		return
	}
	var req models.ManageFarmerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid farmer payload"))
		return
	}
	if err := h.service.Manage(c.Request.Context(), agent, req.FarmerID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignRole godoc
// @Summary Replace a user's role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.AssignRoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/role [put]
func (h *UserHandler) AssignRole(c *gin.Context) {
	actor, ok := currentUser(c, h.service)
	if !ok {
		return
	}
	var req models.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid role payload"))
		return
	}
	user, err := h.service.AssignRole(c.Request.Context(), actor, c.Param("id"), req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.NewUserProfile(user))
}

func profiles(users []models.User) []models.UserProfile {
	out := make([]models.UserProfile, 0, len(users))
	for i := range users {
		out = append(out, models.NewUserProfile(&users[i]))
	}
	return out
}
