package service

import (
	"context"
	"errors"
	"strings"

	"github.com/crucial707/radar/internal/auth"
	"github.com/crucial707/radar/internal/models"
	"github.com/crucial707/radar/internal/repo"
	"github.com/crucial707/radar/internal/store"
	"github.com/go-playground/validator/v10"
)

// RegisterInput is the body of POST /users.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,bcryptlen"`
}

// Session is returned by a successful login.
type Session struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// UserService implements account registration, profile reads and self-service changes.
type UserService struct {
	users    *repo.UserRepo
	creds    *auth.Credentials
	validate *validator.Validate
}

func NewUserService(users *repo.UserRepo, creds *auth.Credentials) *UserService {
	return &UserService{users: users, creds: creds, validate: newValidator()}
}

// ========================
// REGISTER
// ========================

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := fieldErrors(s.validate.Struct(in)); err != nil {
		return nil, err
	}

	taken, err := s.users.Taken(ctx, "email", in.Email, 0)
	if err != nil {
		return nil, upstream("check email", err)
	}
	if taken {
		return nil, newError(ErrConflict, "email already registered")
	}
	taken, err = s.users.Taken(ctx, "username", in.Username, 0)
	if err != nil {
		return nil, upstream("check username", err)
	}
	if taken {
		return nil, newError(ErrConflict, "username already taken")
	}

	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return nil, upstream("register", err)
	}
	u, err := s.users.Create(ctx, in.Username, in.Email, hash)
	if errors.Is(err, store.ErrConflict) {
		// lost a race with a concurrent registration
		return nil, newError(ErrConflict, "username or email already registered")
	}
	if err != nil {
		return nil, upstream("create user", err)
	}
	return u, nil
}

// ========================
// AUTHENTICATE
// ========================

// Authenticate checks a username/password pair and issues a bearer token.
// Unknown users and wrong passwords produce the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(ErrUnauthorized, "incorrect username or password")
	}
	if err != nil {
		return nil, upstream("load user", err)
	}
	if !s.creds.Verify(password, u.PasswordHash) {
		return nil, newError(ErrUnauthorized, "incorrect username or password")
	}
	if !u.IsActive {
		return nil, newError(ErrUnauthorized, "inactive user")
	}

	tok, err := s.creds.IssueToken(u)
	if err != nil {
		return nil, upstream("issue token", err)
	}
	return &Session{AccessToken: tok, TokenType: "bearer", User: u}, nil
}

// ========================
// PROFILES
// ========================

// GetPublicProfile returns an active user by id. Deactivated users are reported as missing.
func (s *UserService) GetPublicProfile(ctx context.Context, id int) (*models.User, error) {
	u, err := s.users.GetActiveByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, upstream("load user", err)
	}
	return u, nil
}

// GetSelf returns the caller's record as resolved by the auth middleware.
func (s *UserService) GetSelf(_ context.Context, self *models.User) (*models.User, error) {
	if self == nil {
		return nil, newError(ErrUnauthorized, "could not validate credentials")
	}
	return self, nil
}

// ========================
// UPDATE SELF
// ========================

// UpdateSelf applies a partial profile change. Null username or email is
// ignored, a null bio clears it. Unchanged values are not written.
func (s *UserService) UpdateSelf(ctx context.Context, self *models.User, patch models.UserPatch) (*models.User, error) {
	if self == nil {
		return nil, newError(ErrUnauthorized, "could not validate credentials")
	}

	changes := store.Row{}
	fields := map[string]string{}

	if patch.Username.HasValue() {
		v := strings.TrimSpace(patch.Username.Value)
		if v != self.Username {
			if msg, ok := checkVar(s.validate, "username", v, usernameRules); !ok {
				fields["username"] = msg
			} else {
				changes["username"] = v
			}
		}
	}
	if patch.Email.HasValue() {
		v := strings.TrimSpace(patch.Email.Value)
		if v != self.Email {
			if msg, ok := checkVar(s.validate, "email", v, emailRules); !ok {
				fields["email"] = msg
			} else {
				changes["email"] = v
			}
		}
	}
	if patch.Bio.Set {
		switch {
		case patch.Bio.Null:
			if self.Bio != nil {
				changes["bio"] = nil
			}
		case self.Bio == nil || *self.Bio != patch.Bio.Value:
			changes["bio"] = patch.Bio.Value
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if len(changes) == 0 {
		return self, nil
	}

	if v, ok := changes["username"].(string); ok {
		taken, err := s.users.Taken(ctx, "username", v, self.ID)
		if err != nil {
			return nil, upstream("check username", err)
		}
		if taken {
			return nil, newError(ErrConflict, "username already taken")
		}
	}
	if v, ok := changes["email"].(string); ok {
		taken, err := s.users.Taken(ctx, "email", v, self.ID)
		if err != nil {
			return nil, upstream("check email", err)
		}
		if taken {
			return nil, newError(ErrConflict, "email already registered")
		}
	}

	u, err := s.users.Update(ctx, self.ID, changes)
	if errors.Is(err, store.ErrConflict) {
		return nil, newError(ErrConflict, "username or email already registered")
	}
	if err != nil {
		return nil, upstream("update user", err)
	}
	return u, nil
}

// ========================
// DEACTIVATE SELF
// ========================

// DeactivateSelf flips is_active off. Posts and the record itself are kept.
func (s *UserService) DeactivateSelf(ctx context.Context, self *models.User) error {
	if self == nil {
		return newError(ErrUnauthorized, "could not validate credentials")
	}
	if err := s.users.Deactivate(ctx, self.ID); err != nil {
		return upstream("deactivate user", err)
	}
	return nil
}
