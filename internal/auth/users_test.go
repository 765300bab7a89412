package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/model"
)

func TestUserStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("analyst", "hash", (*string)(nil), []byte(`["READ_ORDERS"]`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(int64(3), true, now, now))

	store := NewUserStore(mock)
	user, err := store.Create(context.Background(), "analyst", "hash", nil, []string{model.AuthorityReadOrders})
	require.NoError(t, err)

	assert.Equal(t, int64(3), user.ID)
	assert.True(t, user.IsActive)
	assert.Equal(t, []string{model.AuthorityReadOrders}, user.Authorities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreCreateDuplicateLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("analyst", "hash", (*string)(nil), []byte(`[]`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	store := NewUserStore(mock)
	_, err = store.Create(context.Background(), "analyst", "hash", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, apperr.FieldsOf(err), "login")
}

func TestUserStoreGetByLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE login`).
		WithArgs("analyst").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "login", "password_hash", "full_name", "is_active", "authorities",
			"created_at", "updated_at",
		}).AddRow(int64(3), "analyst", "hash", (*string)(nil), true,
			[]byte(`["READ_ORDERS","EDIT_ORDERS"]`), now, now))

	store := NewUserStore(mock)
	user, err := store.GetByLogin(context.Background(), "analyst")
	require.NoError(t, err)

	assert.True(t, user.HasAuthority(model.AuthorityEditOrders))
	assert.False(t, user.HasAuthority(model.AuthorityEditUsers))
}

func TestUserStoreGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id`).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "login", "password_hash", "full_name", "is_active", "authorities",
			"created_at", "updated_at",
		}))

	store := NewUserStore(mock)
	_, err = store.GetByID(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEnsureAdminSkipsWhenUnconfigured(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewUserStore(mock)
	user, err := store.EnsureAdmin(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}
