package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/pkg/response"
)

type forumService interface {
	ListForums(ctx context.Context) ([]models.Forum, error)
	CreateForum(ctx context.Context, actor *models.User, req models.CreateForumRequest) (*models.Forum, error)
	ListPosts(ctx context.Context, forumID string) ([]models.Post, error)
	CreatePost(ctx context.Context, author *models.User, forumID string, req models.CreatePostRequest) (*models.Post, error)
	ListComments(ctx context.Context, viewer *models.User, postID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, author *models.User, postID string, req models.CreateCommentRequest) (*models.Comment, error)
	SetCommentDisabled(ctx context.Context, moderator *models.User, commentID string, disabled bool) error
}

// ForumHandler exposes the content board.
type ForumHandler struct {
	service forumService
	users   userLookup
}

// NewForumHandler constructs a ForumHandler.
func NewForumHandler(svc forumService, users userLookup) *ForumHandler {
	return &ForumHandler{service: svc, users: users}
}

// ListForums godoc
// @Summary List forums
// @Tags Forums
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /forums [get]
func (h *ForumHandler) ListForums(c *gin.Context) {
	forums, err := h.service.ListForums(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forums)
}

// CreateForum godoc
// @Summary Open a forum
// @Tags Forums
// @Accept json
// @Produce json
// @Param payload body models.CreateForumRequest true "Forum"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forums [post]
func (h *ForumHandler) CreateForum(c *gin.Context) {
	actor, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var req models.CreateForumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid forum payload"))
		return
	}
	forum, err := h.service.CreateForum(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, forum)
}

// ListPosts godoc
// @Summary Posts of a forum
// @Tags Forums
// @Produce json
// @Param id path string true "Forum ID"
// @Success 200 {object} response.Envelope
// @Router /forums/{id}/posts [get]
func (h *ForumHandler) ListPosts(c *gin.Context) {
	posts, err := h.service.ListPosts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts)
}

// CreatePost godoc
// @Summary Publish a post
// @Tags Forums
// @Accept json
// @Produce json
// @Param id path string true "Forum ID"
// @Param payload body models.CreatePostRequest true "Post"
// @Success 201 {object} response.Envelope
// @Router /forums/{id}/posts [post]
func (h *ForumHandler) CreatePost(c *gin.Context) {
	author, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var req models.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid post payload"))
		return
	}
	post, err := h.service.CreatePost(c.Request.Context(), author, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// ListComments godoc
// @Summary Comments of a post
// @Tags Forums
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Router /posts/{id}/comments [get]
func (h *ForumHandler) ListComments(c *gin.Context) {
	viewer, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	comments, err := h.service.ListComments(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments)
}

// CreateComment godoc
// @Summary Reply to a post
// @Tags Forums
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body models.CreateCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /posts/{id}/comments [post]
func (h *ForumHandler) CreateComment(c *gin.Context) {
	author, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var req models.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid comment payload"))
		return
	}
	comment, err := h.service.CreateComment(c.Request.Context(), author, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// SetCommentDisabled godoc
// @Summary Hide or restore a comment
// @Tags Forums
// @Accept json
// @Param id path string true "Comment ID"
// @Param payload body map[string]bool true "disabled flag"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /comments/{id}/disabled [put]
func (h *ForumHandler) SetCommentDisabled(c *gin.Context) {
	moderator, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	var payload struct {
		Disabled *bool `json:"disabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, bindError(err, "disabled flag required"))
		return
	}
	if err := h.service.SetCommentDisabled(c.Request.Context(), moderator, c.Param("id"), *payload.Disabled); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
