package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agromarket-api/internal/models"
)

const (
	forumColumns = `id, name, description, post_count, created_at`
	postSelect   = `SELECT p.id, p.forum_id, p.author_id, u.firstname || ' ' || u.lastname AS author_name, p.body, p.body_html,
(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id AND c.disabled = FALSE) AS comment_count, p.created_at
FROM posts p JOIN users u ON u.id = p.author_id`
	commentSelect = `SELECT c.id, c.post_id, c.author_id, u.firstname || ' ' || u.lastname AS author_name, c.body, c.body_html, c.disabled, c.created_at
FROM comments c JOIN users u ON u.id = c.author_id`
)

// ForumRepository provides database access for forums, posts and comments.
type ForumRepository struct {
	db sqlx.ExtContext
}

// NewForumRepository constructs the repository.
func NewForumRepository(db sqlx.ExtContext) *ForumRepository {
	return &ForumRepository{db: db}
}

// ListForums returns every forum ordered by name.
func (r *ForumRepository) ListForums(ctx context.Context) ([]models.Forum, error) {
	query := `SELECT ` + forumColumns + ` FROM forums ORDER BY name`
	var forums []models.Forum
	if err := sqlx.SelectContext(ctx, r.db, &forums, query); err != nil {
		return nil, fmt.Errorf("list forums: %w", err)
	}
	return forums, nil
}

// FindForum returns a forum by identifier.
func (r *ForumRepository) FindForum(ctx context.Context, id string) (*models.Forum, error) {
	query := `SELECT ` + forumColumns + ` FROM forums WHERE id = $1 LIMIT 1`
	var forum models.Forum
	if err := sqlx.GetContext(ctx, r.db, &forum, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find forum: %w", err)
	}
	return &forum, nil
}

// CreateForum inserts a forum. A name collision returns ErrDuplicateName.
func (r *ForumRepository) CreateForum(ctx context.Context, forum *models.Forum) error {
	if forum.ID == "" {
		forum.ID = uuid.NewString()
	}
	if forum.CreatedAt.IsZero() {
		forum.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO forums (id, name, description, post_count, created_at) VALUES (:id, :name, :description, :post_count, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, forum); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrDuplicateName
		}
		return fmt.Errorf("create forum: %w", err)
	}
	return nil
}

// ListPosts returns the posts of a forum, newest first.
func (r *ForumRepository) ListPosts(ctx context.Context, forumID string) ([]models.Post, error) {
	query := postSelect + ` WHERE p.forum_id = $1 ORDER BY p.created_at DESC`
	var posts []models.Post
	if err := sqlx.SelectContext(ctx, r.db, &posts, query, forumID); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// FindPost returns a post by identifier.
func (r *ForumRepository) FindPost(ctx context.Context, id string) (*models.Post, error) {
	query := postSelect + ` WHERE p.id = $1 LIMIT 1`
	var post models.Post
	if err := sqlx.GetContext(ctx, r.db, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}

// CreatePost inserts a post.
func (r *ForumRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO posts (id, forum_id, author_id, body, body_html, created_at) VALUES (:id, :forum_id, :author_id, :body, :body_html, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// IncrementPostCount bumps the post counter of a forum.
func (r *ForumRepository) IncrementPostCount(ctx context.Context, forumID string) error {
	const query = `UPDATE forums SET post_count = post_count + 1 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, forumID)
	if err != nil {
		return fmt.Errorf("increment post count: %w", err)
	}
	return expectAffected(res, "increment post count")
}

// ListComments returns the comments of a post, oldest first. Disabled
// comments are included only when includeDisabled is set.
func (r *ForumRepository) ListComments(ctx context.Context, postID string, includeDisabled bool) ([]models.Comment, error) {
	query := commentSelect + ` WHERE c.post_id = $1`
	if !includeDisabled {
		query += ` AND c.disabled = FALSE`
	}
	query += ` ORDER BY c.created_at`
	var comments []models.Comment
	if err := sqlx.SelectContext(ctx, r.db, &comments, query, postID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CreateComment inserts a comment.
func (r *ForumRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comments (id, post_id, author_id, body, body_html, disabled, created_at) VALUES (:id, :post_id, :author_id, :body, :body_html, :disabled, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// SetCommentDisabled hides or restores a comment.
func (r *ForumRepository) SetCommentDisabled(ctx context.Context, id string, disabled bool) error {
	const query = `UPDATE comments SET disabled = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, disabled)
	if err != nil {
		return fmt.Errorf("set comment disabled: %w", err)
	}
	return expectAffected(res, "set comment disabled")
}
