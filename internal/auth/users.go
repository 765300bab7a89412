package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/model"
)

// UserStore persists user accounts.
type UserStore struct {
	pool db.Pool
}

// NewUserStore wraps a database pool.
func NewUserStore(pool db.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumnsSQL = `id, login, password_hash, full_name, is_active, authorities, created_at, updated_at`

const createUserSQL = `
INSERT INTO users (login, password_hash, full_name, authorities)
VALUES ($1, $2, $3, $4)
RETURNING id, is_active, created_at, updated_at`

// Create inserts a user. A taken login is a validation error.
func (s *UserStore) Create(ctx context.Context, login, passwordHash string, fullName *string, authorities []string) (*model.User, error) {
	if authorities == nil {
		authorities = []string{}
	}
	rawAuth, err := json.Marshal(authorities)
	if err != nil {
		return nil, eris.Wrap(err, "auth: marshal authorities")
	}

	user := &model.User{
		Login:        login,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Authorities:  authorities,
	}
	err = s.pool.QueryRow(ctx, createUserSQL, login, passwordHash, fullName, rawAuth).
		Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Validation("login is already taken", "login")
		}
		return nil, eris.Wrap(err, "auth: create user")
	}
	return user, nil
}

// GetByID loads a user by id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.get(ctx, `SELECT `+userColumnsSQL+` FROM users WHERE id = $1`, id)
}

// GetByLogin loads a user by login.
func (s *UserStore) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.get(ctx, `SELECT `+userColumnsSQL+` FROM users WHERE login = $1`, login)
}

func (s *UserStore) get(ctx context.Context, sql string, arg any) (*model.User, error) {
	var user model.User
	var rawAuth []byte
	err := s.pool.QueryRow(ctx, sql, arg).Scan(
		&user.ID, &user.Login, &user.PasswordHash, &user.FullName,
		&user.IsActive, &rawAuth, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "auth: get user")
	}
	if err := json.Unmarshal(rawAuth, &user.Authorities); err != nil {
		return nil, eris.Wrap(err, "auth: decode authorities")
	}
	return &user, nil
}

// List returns all users ordered by id.
func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumnsSQL+` FROM users ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "auth: list users")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		var rawAuth []byte
		if err := rows.Scan(&user.ID, &user.Login, &user.PasswordHash, &user.FullName,
			&user.IsActive, &rawAuth, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "auth: scan user")
		}
		if err := json.Unmarshal(rawAuth, &user.Authorities); err != nil {
			return nil, eris.Wrap(err, "auth: decode authorities")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "auth: user rows")
	}
	return users, nil
}

// UpdateParams are the mutable user fields. Nil means unchanged.
type UpdateParams struct {
	FullName     *string
	IsActive     *bool
	Authorities  []string
	PasswordHash *string
}

const updateUserSQL = `
UPDATE users
SET full_name = COALESCE($2, full_name),
    is_active = COALESCE($3, is_active),
    authorities = COALESCE($4, authorities),
    password_hash = COALESCE($5, password_hash),
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumnsSQL

// Update applies a partial update and returns the stored row.
func (s *UserStore) Update(ctx context.Context, id int64, params UpdateParams) (*model.User, error) {
	var rawAuth []byte
	if params.Authorities != nil {
		var err error
		rawAuth, err = json.Marshal(params.Authorities)
		if err != nil {
			return nil, eris.Wrap(err, "auth: marshal authorities")
		}
	}

	var user model.User
	var storedAuth []byte
	err := s.pool.QueryRow(ctx, updateUserSQL,
		id, params.FullName, params.IsActive, rawAuth, params.PasswordHash).Scan(
		&user.ID, &user.Login, &user.PasswordHash, &user.FullName,
		&user.IsActive, &storedAuth, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "auth: update user")
	}
	if err := json.Unmarshal(storedAuth, &user.Authorities); err != nil {
		return nil, eris.Wrap(err, "auth: decode authorities")
	}
	return &user, nil
}

// Delete removes a user. Orders keep their rows with a nulled author.
func (s *UserStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "auth: delete user")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

// Count returns the number of users.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "auth: count users")
	}
	return n, nil
}

// EnsureAdmin creates the bootstrap admin with every authority when the
// login is configured and absent. Existing users are left untouched.
func (s *UserStore) EnsureAdmin(ctx context.Context, login, password, fullName string) (*model.User, error) {
	if login == "" || password == "" {
		return nil, nil
	}

	existing, err := s.GetByLogin(ctx, login)
	if err == nil {
		return existing, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	var name *string
	if fullName != "" {
		name = &fullName
	}
	return s.Create(ctx, login, hash, name, []string{
		model.AuthorityReadOrders, model.AuthorityEditOrders,
		model.AuthorityReadUsers, model.AuthorityEditUsers,
	})
}
