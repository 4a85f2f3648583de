package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

// memForums reads posts and forums from the shared memStore so CreatePost can
// go through fakeTx.
type memForums struct{ s *memStore }

func (m memForums) ListForums(ctx context.Context) ([]models.Forum, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.Forum
	for _, f := range m.s.forums {
		out = append(out, *f)
	}
	return out, nil
}

func (m memForums) FindForum(ctx context.Context, id string) (*models.Forum, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	f, ok := m.s.forums[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *f
	return &out, nil
}

func (m memForums) CreateForum(ctx context.Context, forum *models.Forum) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, f := range m.s.forums {
		if f.Name == forum.Name {
			return repository.ErrDuplicateName
		}
	}
	forum.ID = uuid.NewString()
	stored := *forum
	m.s.forums[forum.ID] = &stored
	return nil
}

func (m memForums) ListPosts(ctx context.Context, forumID string) ([]models.Post, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.Post
	for _, p := range m.s.posts {
		if p.ForumID == forumID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m memForums) FindPost(ctx context.Context, id string) (*models.Post, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.posts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *p
	return &out, nil
}

func (m memForums) ListComments(ctx context.Context, postID string, includeDisabled bool) ([]models.Comment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []models.Comment
	for _, c := range m.s.comments {
		if c.PostID == postID && (includeDisabled || !c.Disabled) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m memForums) CreateComment(ctx context.Context, comment *models.Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	comment.ID = uuid.NewString()
	stored := *comment
	m.s.comments[comment.ID] = &stored
	return nil
}

func (m memForums) SetCommentDisabled(ctx context.Context, id string, disabled bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.comments[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Disabled = disabled
	return nil
}

type forumFixture struct {
	*marketFixture
	forums *ForumService
	admin  *models.User
	agent  *models.User
	member *models.User
}

func newForumFixture(t *testing.T) *forumFixture {
	t.Helper()
	ctx := context.Background()
	f := newDirectory(t, DirectoryConfig{})
	ff := &forumFixture{marketFixture: f, forums: NewForumService(memForums{f.store}, f.tx, nil, nil)}
	ff.admin = f.promote(ctx, f.mustRegister(t, "admin@example.com").ID, models.RoleNameAdministrator)
	ff.agent = f.promote(ctx, f.mustRegister(t, "agent@example.com").ID, models.RoleNameAgent)
	ff.member = f.mustRegister(t, "member@example.com")
	return ff
}

func TestCreateForumAdministratorOnly(t *testing.T) {
	ctx := context.Background()
	f := newForumFixture(t)

	_, err := f.forums.CreateForum(ctx, f.agent, models.CreateForumRequest{Name: "Harvest"})
	assert.ErrorIs(t, err, appErrors.ErrPermissionDenied)

	forum, err := f.forums.CreateForum(ctx, f.admin, models.CreateForumRequest{Name: "Harvest", Description: "Season talk"})
	require.NoError(t, err)
	assert.NotEmpty(t, forum.ID)

	_, err = f.forums.CreateForum(ctx, f.admin, models.CreateForumRequest{Name: "Harvest"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateName)
}

func TestCreatePostRendersAndCounts(t *testing.T) {
	ctx := context.Background()
	f := newForumFixture(t)
	forum, err := f.forums.CreateForum(ctx, f.admin, models.CreateForumRequest{Name: "Harvest"})
	require.NoError(t, err)

	post, err := f.forums.CreatePost(ctx, f.member, forum.ID, models.CreatePostRequest{Body: "# Yields\n\n<script>alert(1)</script>**good**"})
	require.NoError(t, err)
	assert.Contains(t, post.BodyHTML, "<h1>Yields</h1>")
	assert.Contains(t, post.BodyHTML, "<strong>good</strong>")
	assert.NotContains(t, post.BodyHTML, "<script>")
	assert.Equal(t, "Ada Obi", post.AuthorName)

	stored, err := f.forums.ListForums(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].PostCount)

	posts, err := f.forums.ListPosts(ctx, forum.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestCreatePostRequiresWriteAndForum(t *testing.T) {
	ctx := context.Background()
	f := newForumFixture(t)

	_, err := f.forums.CreatePost(ctx, &models.User{ID: "nobody"}, "forum", models.CreatePostRequest{Body: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrPermissionDenied)

	_, err = f.forums.CreatePost(ctx, f.member, "missing", models.CreatePostRequest{Body: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, f.store.posts)
}

func TestCommentModeration(t *testing.T) {
	ctx := context.Background()
	f := newForumFixture(t)
	forum, err := f.forums.CreateForum(ctx, f.admin, models.CreateForumRequest{Name: "Harvest"})
	require.NoError(t, err)
	post, err := f.forums.CreatePost(ctx, f.member, forum.ID, models.CreatePostRequest{Body: "Prices?"})
	require.NoError(t, err)

	comment, err := f.forums.CreateComment(ctx, f.member, post.ID, models.CreateCommentRequest{Body: "# Up **a lot**"})
	require.NoError(t, err)
	assert.NotContains(t, comment.BodyHTML, "<h1>")
	assert.Contains(t, comment.BodyHTML, "<strong>a lot</strong>")

	err = f.forums.SetCommentDisabled(ctx, f.member, comment.ID, true)
	assert.ErrorIs(t, err, appErrors.ErrPermissionDenied)

	require.NoError(t, f.forums.SetCommentDisabled(ctx, f.agent, comment.ID, true))

	visible, err := f.forums.ListComments(ctx, f.member, post.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)

	moderated, err := f.forums.ListComments(ctx, f.agent, post.ID)
	require.NoError(t, err)
	require.Len(t, moderated, 1)
	assert.True(t, moderated[0].Disabled)

	err = f.forums.SetCommentDisabled(ctx, f.agent, "missing", true)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
