package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresStore(db), mock, db
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	userCols := []string{"id", "email", "name", "created_at"}

	t.Run("success", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery("SELECT id, email").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(7, "jamie@example.com", "Jamie Reed", now))

		user, err := store.GetUser(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "jamie@example.com", user.Email)
		assert.Equal(t, "Jamie Reed", user.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery("SELECT id, email").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetUser(ctx, 99)
		require.ErrorIs(t, err, ErrUserNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByEmail(t *testing.T) {
	ctx := context.Background()

	store, mock, db := newMockStore(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, email").
		WithArgs("jamie@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
			AddRow(7, "jamie@example.com", "", now))

	user, err := store.GetUserByEmail(ctx, "jamie@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "", user.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDisplayName(t *testing.T) {
	ctx := context.Background()

	t.Run("success trims and returns the fresh row", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		now := time.Now()
		mock.ExpectExec("UPDATE users SET name").
			WithArgs("Jamie R", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id, email").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
				AddRow(7, "jamie@example.com", "Jamie R", now))

		user, err := store.UpdateDisplayName(ctx, 7, "  Jamie R  ")
		require.NoError(t, err)
		assert.Equal(t, "Jamie R", user.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectExec("UPDATE users SET name").
			WithArgs("Jamie R", int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := store.UpdateDisplayName(ctx, 99, "Jamie R")
		require.ErrorIs(t, err, ErrUserNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
