package repo

import (
	"context"
	"time"

	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/store"
)

const postsTable = "posts"

// newestFirst keeps pagination stable when created_at ties.
var newestFirst = []store.Order{store.Desc("created_at"), store.Desc("id")}

type postRow struct {
	ID        int        `json:"id"`
	Title     *string    `json:"title"`
	Content   string     `json:"content"`
	ImageURL  *string    `json:"image_url"`
	AuthorID  int        `json:"author_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (r postRow) model() *models.Post {
	return &models.Post{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		ImageURL:  r.ImageURL,
		AuthorID:  r.AuthorID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ========================
// REPOSITORY STRUCT
// ========================

type PostRepo struct {
	posts store.Table
}

func NewPostRepo(c store.Client) *PostRepo {
	return &PostRepo{posts: c.Table(postsTable)}
}

// ========================
// CREATE POST
// ========================

func (r *PostRepo) Create(ctx context.Context, authorID int, title *string, content string, imageURL *string) (*models.Post, error) {
	values := store.Row{
		"author_id": authorID,
		"content":   content,
	}
	if title != nil {
		values["title"] = *title
	}
	if imageURL != nil {
		values["image_url"] = *imageURL
	}

	row, err := r.posts.Insert(ctx, values)
	if err != nil {
		return nil, err
	}
	var p postRow
	if err := store.Decode(row, &p); err != nil {
		return nil, err
	}
	return p.model(), nil
}

// ========================
// GET POST BY ID
// ========================

func (r *PostRepo) GetByID(ctx context.Context, id int) (*models.Post, error) {
	rows, err := r.posts.Select(ctx, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	var p postRow
	if err := store.Decode(rows[0], &p); err != nil {
		return nil, err
	}
	return p.model(), nil
}

// ========================
// LIST POSTS WITH PAGINATION
// ========================

func (r *PostRepo) ListPaginated(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	return r.list(ctx, store.Query{Order: newestFirst, Limit: limit, Offset: offset})
}

// ========================
// LIST POSTS BY AUTHOR
// ========================

func (r *PostRepo) ListByAuthor(ctx context.Context, authorID int) ([]*models.Post, error) {
	return r.list(ctx, store.Query{
		Filters: []store.Filter{store.Eq("author_id", authorID)},
		Order:   newestFirst,
	})
}

// ========================
// UPDATE POST BY ID
// ========================

func (r *PostRepo) UpdateByID(ctx context.Context, id int, changes store.Row) (*models.Post, error) {
	rows, err := r.posts.Update(ctx, []store.Filter{store.Eq("id", id)}, changes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrEmptyResult
	}
	var p postRow
	if err := store.Decode(rows[0], &p); err != nil {
		return nil, err
	}
	return p.model(), nil
}

// ========================
// DELETE POST BY ID
// ========================

func (r *PostRepo) DeleteByID(ctx context.Context, id int) error {
	n, err := r.posts.Delete(ctx, []store.Filter{store.Eq("id", id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrEmptyResult
	}
	return nil
}

// ========================
// IMAGE URLS
// ========================

// ImageURLs returns every image_url currently referenced by a post.
func (r *PostRepo) ImageURLs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.posts.Select(ctx, store.Query{
		Columns: []string{"image_url"},
		Filters: []store.Filter{store.Neq("image_url", nil)},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		if u, ok := row["image_url"].(string); ok && u != "" {
			out[u] = true
		}
	}
	return out, nil
}

func (r *PostRepo) list(ctx context.Context, q store.Query) ([]*models.Post, error) {
	rows, err := r.posts.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	var decoded []postRow
	if err := store.Decode(rows, &decoded); err != nil {
		return nil, err
	}
	posts := make([]*models.Post, 0, len(decoded))
	for _, p := range decoded {
		posts = append(posts, p.model())
	}
	return posts, nil
}
