package models

import "time"

// Forum groups posts by topic.
type Forum struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	PostCount   int       `db:"post_count" json:"post_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Post is a forum entry. BodyHTML is rendered from Body on every write.
type Post struct {
	ID           string    `db:"id" json:"id"`
	ForumID      string    `db:"forum_id" json:"forum_id"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	AuthorName   string    `db:"author_name" json:"author_name"`
	Body         string    `db:"body" json:"body"`
	BodyHTML     string    `db:"body_html" json:"body_html"`
	CommentCount int       `db:"comment_count" json:"comment_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Comment replies to a post. Disabled comments are hidden by moderators.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	PostID     string    `db:"post_id" json:"post_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Body       string    `db:"body" json:"body"`
	BodyHTML   string    `db:"body_html" json:"body_html"`
	Disabled   bool      `db:"disabled" json:"disabled"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CreateForumRequest is the payload for opening a forum.
type CreateForumRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=500"`
}

// CreatePostRequest is the payload for a new post.
type CreatePostRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// CreateCommentRequest is the payload for a new comment.
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}
