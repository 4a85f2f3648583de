package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/markup"
)

type forumRepository interface {
	ListForums(ctx context.Context) ([]models.Forum, error)
	FindForum(ctx context.Context, id string) (*models.Forum, error)
	CreateForum(ctx context.Context, forum *models.Forum) error
	ListPosts(ctx context.Context, forumID string) ([]models.Post, error)
	FindPost(ctx context.Context, id string) (*models.Post, error)
	ListComments(ctx context.Context, postID string, includeDisabled bool) ([]models.Comment, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	SetCommentDisabled(ctx context.Context, id string, disabled bool) error
}

// ForumService runs the content board.
type ForumService struct {
	repo      forumRepository
	tx        transactor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewForumService constructs a ForumService.
func NewForumService(repo forumRepository, tx transactor, validate *validator.Validate, logger *zap.Logger) *ForumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ForumService{repo: repo, tx: tx, validator: validate, logger: logger}
}

// ListForums returns every forum.
func (s *ForumService) ListForums(ctx context.Context) ([]models.Forum, error) {
	forums, err := s.repo.ListForums(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list forums")
	}
	return forums, nil
}

// CreateForum opens a forum. Administrators only.
func (s *ForumService) CreateForum(ctx context.Context, actor *models.User, req models.CreateForumRequest) (*models.Forum, error) {
	if !actor.IsAdministrator() {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only administrators can open forums")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forum payload")
	}
	forum := &models.Forum{Name: req.Name, Description: req.Description}
	if err := s.repo.CreateForum(ctx, forum); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "a forum with this name already exists")
		}
		return nil, appErrors.Internal(err, "failed to create forum")
	}
	return forum, nil
}

// ListPosts returns the posts of a forum.
func (s *ForumService) ListPosts(ctx context.Context, forumID string) ([]models.Post, error) {
	if _, err := s.getForum(ctx, forumID); err != nil {
		return nil, err
	}
	posts, err := s.repo.ListPosts(ctx, forumID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list posts")
	}
	return posts, nil
}

// CreatePost publishes a post and bumps the forum's post count in the same
// transaction. The author needs WRITE.
func (s *ForumService) CreatePost(ctx context.Context, author *models.User, forumID string, req models.CreatePostRequest) (*models.Post, error) {
	if !author.Role().HasPermission(models.PermWrite) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "posting requires write permission")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}
	if _, err := s.getForum(ctx, forumID); err != nil {
		return nil, err
	}

	post := &models.Post{
		ForumID:    forumID,
		AuthorID:   author.ID,
		AuthorName: author.FullName(),
		Body:       req.Body,
		BodyHTML:   markup.Render(req.Body, markup.PostPolicy),
	}
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		if err := scope.Forums().CreatePost(ctx, post); err != nil {
			return err
		}
		return scope.Forums().IncrementPostCount(ctx, forumID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "forum not found")
		}
		return nil, appErrors.Internal(err, "failed to create post")
	}
	return post, nil
}

// ListComments returns the comments of a post. Moderators also see disabled ones.
func (s *ForumService) ListComments(ctx context.Context, viewer *models.User, postID string) ([]models.Comment, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	includeDisabled := viewer.Role().HasPermission(models.PermModerate)
	comments, err := s.repo.ListComments(ctx, postID, includeDisabled)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list comments")
	}
	return comments, nil
}

// CreateComment replies to a post. The author needs COMMENT.
func (s *ForumService) CreateComment(ctx context.Context, author *models.User, postID string, req models.CreateCommentRequest) (*models.Comment, error) {
	if !author.Role().HasPermission(models.PermComment) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "commenting requires comment permission")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	comment := &models.Comment{
		PostID:     postID,
		AuthorID:   author.ID,
		AuthorName: author.FullName(),
		Body:       req.Body,
		BodyHTML:   markup.Render(req.Body, markup.CommentPolicy),
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Internal(err, "failed to create comment")
	}
	return comment, nil
}

// SetCommentDisabled hides or restores a comment. Moderators only.
func (s *ForumService) SetCommentDisabled(ctx context.Context, moderator *models.User, commentID string, disabled bool) error {
	if !moderator.Role().HasPermission(models.PermModerate) {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "moderation requires moderate permission")
	}
	if err := s.repo.SetCommentDisabled(ctx, commentID, disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Internal(err, "failed to moderate comment")
	}
	s.logger.Info("comment moderated", zap.String("comment_id", commentID), zap.String("moderator_id", moderator.ID), zap.Bool("disabled", disabled))
	return nil
}

func (s *ForumService) getForum(ctx context.Context, id string) (*models.Forum, error) {
	forum, err := s.repo.FindForum(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "forum not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch forum")
	}
	return forum, nil
}

func (s *ForumService) getPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.repo.FindPost(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch post")
	}
	return post, nil
}
