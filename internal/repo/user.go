package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/store"
)

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("record not found")

const usersTable = "users"

// userRow maps the users table; unlike models.User it carries the password hash.
type userRow struct {
	ID             int       `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	Bio            *string   `json:"bio"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
}

func (r userRow) model() *models.User {
	return &models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.HashedPassword,
		Bio:          r.Bio,
		CreatedAt:    r.CreatedAt,
		IsActive:     r.IsActive,
	}
}

// ==========================
// UserRepo
// ==========================
type UserRepo struct {
	users store.Table
}

// ==========================
// Constructor
// ==========================
func NewUserRepo(c store.Client) *UserRepo {
	return &UserRepo{users: c.Table(usersTable)}
}

// ==========================
// Create User
// ==========================
func (r *UserRepo) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	row, err := r.users.Insert(ctx, store.Row{
		"username":        username,
		"email":           email,
		"hashed_password": passwordHash,
		"is_active":       true,
	})
	if err != nil {
		return nil, err
	}

	var u userRow
	if err := store.Decode(row, &u); err != nil {
		return nil, err
	}
	return u.model(), nil
}

// ==========================
// Get By ID
// ==========================
func (r *UserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	return r.first(ctx, store.Eq("id", id))
}

// GetActiveByID only matches users with is_active = true.
func (r *UserRepo) GetActiveByID(ctx context.Context, id int) (*models.User, error) {
	return r.first(ctx, store.Eq("id", id), store.Eq("is_active", true))
}

// ==========================
// Get By Username
// ==========================
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, store.Eq("username", username))
}

// Taken reports whether another user (not excludeID; pass 0 for none)
// already holds value in column, which must be username or email.
func (r *UserRepo) Taken(ctx context.Context, column, value string, excludeID int) (bool, error) {
	if column != "username" && column != "email" {
		return false, fmt.Errorf("%w: %q is not a unique user column", store.ErrInvalidQuery, column)
	}
	filters := []store.Filter{store.Eq(column, value)}
	if excludeID > 0 {
		filters = append(filters, store.Neq("id", excludeID))
	}
	rows, err := r.users.Select(ctx, store.Query{Columns: []string{"id"}, Filters: filters, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ==========================
// List By IDs
// ==========================

// ListByIDs fetches every listed user in one IN query, keyed by id.
func (r *UserRepo) ListByIDs(ctx context.Context, ids []int) (map[int]*models.User, error) {
	out := make(map[int]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.users.Select(ctx, store.Query{Filters: []store.Filter{store.In("id", ids)}})
	if err != nil {
		return nil, err
	}
	var decoded []userRow
	if err := store.Decode(rows, &decoded); err != nil {
		return nil, err
	}
	for _, u := range decoded {
		out[u.ID] = u.model()
	}
	return out, nil
}

// ==========================
// Update User
// ==========================

// Update writes changes (column -> value) to one user and returns the stored record.
func (r *UserRepo) Update(ctx context.Context, id int, changes store.Row) (*models.User, error) {
	rows, err := r.users.Update(ctx, []store.Filter{store.Eq("id", id)}, changes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrEmptyResult
	}
	var u userRow
	if err := store.Decode(rows[0], &u); err != nil {
		return nil, err
	}
	return u.model(), nil
}

// ==========================
// Deactivate User
// ==========================
func (r *UserRepo) Deactivate(ctx context.Context, id int) error {
	_, err := r.Update(ctx, id, store.Row{"is_active": false})
	return err
}

func (r *UserRepo) first(ctx context.Context, filters ...store.Filter) (*models.User, error) {
	rows, err := r.users.Select(ctx, store.Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	var u userRow
	if err := store.Decode(rows[0], &u); err != nil {
		return nil, err
	}
	return u.model(), nil
}
