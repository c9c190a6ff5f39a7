package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/crucial707/radar/internal/metrics"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/repo"
	"github.com/crucial707/radar/internal/store"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
)

// Attachments persists uploaded files and knows which ones are stale.
// *attach.Store satisfies it.
type Attachments interface {
	Save(originalName string, r io.Reader) (string, error)
	Sweep(ctx context.Context, referenced map[string]bool, grace time.Duration) (int, error)
}

// Upload is an optional file sent with a new post.
type Upload struct {
	Filename string
	Body     io.Reader
}

// CreatePostInput carries the multipart fields of POST /posts.
type CreatePostInput struct {
	Title   *string
	Content string
	File    *Upload
}

// PostService implements post publishing, listing and author-only edits.
type PostService struct {
	posts *repo.PostRepo
	users *repo.UserRepo
	files Attachments
	now   func() time.Time
}

type PostOption func(*PostService)

// WithPostClock replaces time.Now for updated_at stamps.
func WithPostClock(now func() time.Time) PostOption {
	return func(s *PostService) { s.now = now }
}

func NewPostService(posts *repo.PostRepo, users *repo.UserRepo, files Attachments, opts ...PostOption) *PostService {
	s := &PostService{posts: posts, users: users, files: files, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ========================
// CREATE
// ========================

// Create stores the optional file first, then the post. A file whose post
// insert fails stays on disk until the orphan sweep removes it.
func (s *PostService) Create(ctx context.Context, author *models.User, in CreatePostInput) (*models.Post, error) {
	if author == nil {
		return nil, newError(ErrUnauthorized, "could not validate credentials")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, invalid("content", "required")
	}
	title := in.Title
	if title != nil && *title == "" {
		title = nil
	}

	var imageURL *string
	if in.File != nil && in.File.Filename != "" {
		u, err := s.files.Save(in.File.Filename, in.File.Body)
		if err != nil {
			return nil, upstream("store attachment", err)
		}
		metrics.IncAttachmentsStored()
		imageURL = &u
	}

	p, err := s.posts.Create(ctx, author.ID, title, in.Content, imageURL)
	if errors.Is(err, store.ErrInvalidReference) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, upstream("create post", err)
	}
	metrics.IncPostsCreated()
	p.Author = author
	return p, nil
}

// ========================
// LIST
// ========================

// List returns one page of posts, newest first, each with its author.
func (s *PostService) List(ctx context.Context, skip, limit int) ([]*models.Post, error) {
	fields := map[string]string{}
	if skip < 0 {
		fields["skip"] = "must be zero or greater"
	}
	if limit < 1 || limit > MaxPageLimit {
		fields["limit"] = "must be between 1 and 100"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	posts, err := s.posts.ListPaginated(ctx, limit, skip)
	if err != nil {
		return nil, upstream("list posts", err)
	}
	if err := s.attachAuthors(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// attachAuthors resolves all distinct authors of posts with a single lookup.
func (s *PostService) attachAuthors(ctx context.Context, posts []*models.Post) error {
	seen := make(map[int]bool, len(posts))
	ids := make([]int, 0, len(posts))
	for _, p := range posts {
		if !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			ids = append(ids, p.AuthorID)
		}
	}
	authors, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return upstream("load authors", err)
	}
	for _, p := range posts {
		p.Author = authors[p.AuthorID]
	}
	return nil
}

// ========================
// GET
// ========================

func (s *PostService) Get(ctx context.Context, id int) (*models.Post, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	author, err := s.users.GetByID(ctx, p.AuthorID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		slog.WarnContext(ctx, "post author missing", "post_id", p.ID, "author_id", p.AuthorID)
	case err != nil:
		return nil, upstream("load author", err)
	default:
		p.Author = author
	}
	return p, nil
}

// ========================
// UPDATE
// ========================

// Update applies present, non-null fields of patch. Only the author may edit;
// updated_at is always stamped and always later than created_at.
func (s *PostService) Update(ctx context.Context, caller *models.User, id int, patch models.PostPatch) (*models.Post, error) {
	if caller == nil {
		return nil, newError(ErrUnauthorized, "could not validate credentials")
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AuthorID != caller.ID {
		return nil, newError(ErrForbidden, "not authorized to update this post")
	}

	changes := store.Row{}
	if patch.Title.HasValue() {
		changes["title"] = patch.Title.Value
	}
	if patch.Content.HasValue() {
		if strings.TrimSpace(patch.Content.Value) == "" {
			return nil, invalid("content", "required")
		}
		changes["content"] = patch.Content.Value
	}
	if patch.ImageURL.HasValue() {
		changes["image_url"] = patch.ImageURL.Value
	}

	now := s.now().UTC()
	if !now.After(p.CreatedAt) {
		now = p.CreatedAt.Add(time.Microsecond)
	}
	changes["updated_at"] = now

	updated, err := s.posts.UpdateByID(ctx, id, changes)
	if errors.Is(err, store.ErrEmptyResult) {
		return nil, newError(ErrNotFound, "post not found")
	}
	if err != nil {
		return nil, upstream("update post", err)
	}
	updated.Author = caller
	return updated, nil
}

// ========================
// DELETE
// ========================

func (s *PostService) Delete(ctx context.Context, caller *models.User, id int) error {
	if caller == nil {
		return newError(ErrUnauthorized, "could not validate credentials")
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if p.AuthorID != caller.ID {
		return newError(ErrForbidden, "not authorized to delete this post")
	}
	if err := s.posts.DeleteByID(ctx, id); err != nil {
		return upstream("delete post", err)
	}
	return nil
}

// ========================
// LIST BY AUTHOR
// ========================

// ListByAuthor returns every post of an active user, newest first.
func (s *PostService) ListByAuthor(ctx context.Context, userID int) ([]*models.Post, error) {
	author, err := s.users.GetActiveByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, upstream("load user", err)
	}
	posts, err := s.posts.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, upstream("list posts", err)
	}
	for _, p := range posts {
		p.Author = author
	}
	return posts, nil
}

// ========================
// ORPHAN SWEEP
// ========================

// SweepOrphans removes uploads older than grace that no post references.
func (s *PostService) SweepOrphans(ctx context.Context, grace time.Duration) (int, error) {
	refs, err := s.posts.ImageURLs(ctx)
	if err != nil {
		return 0, upstream("list image urls", err)
	}
	n, err := s.files.Sweep(ctx, refs, grace)
	metrics.AddAttachmentsSwept(n)
	if err != nil {
		return n, upstream("sweep attachments", err)
	}
	return n, nil
}

func (s *PostService) load(ctx context.Context, id int) (*models.Post, error) {
	p, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(ErrNotFound, "post not found")
	}
	if err != nil {
		return nil, upstream("load post", err)
	}
	return p, nil
}
