package user

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "email", "password", "role"}).
			AddRow(1, "Alice", "alice@example.com", "hash", "USER")

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("Alice", "alice@example.com", "hash").
			WillReturnRows(rows)

		u, err := repo.Create(ctx, "Alice", "alice@example.com", "hash")
		assert.NoError(t, err)
		assert.Equal(t, uint(1), u.ID)
		assert.Equal(t, RoleUser, u.Role)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("Alice", "alice@example.com", "hash").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := repo.Create(ctx, "Alice", "alice@example.com", "hash")
		assert.ErrorIs(t, err, ErrEmailExists)
	})
}

func TestRepository_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "email", "password", "role"}).
			AddRow(2, "Bob", "bob@example.com", "hash", "ADMIN")

		mock.ExpectQuery(`SELECT id, name, email, password, role FROM users`).
			WithArgs("bob@example.com").
			WillReturnRows(rows)

		u, err := repo.FindByEmail(ctx, "bob@example.com")
		assert.NoError(t, err)
		assert.Equal(t, RoleAdmin, u.Role)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, email, password, role FROM users`).
			WithArgs("missing@example.com").
			WillReturnError(errors.New("sql: no rows in result set"))

		_, err := repo.FindByEmail(ctx, "missing@example.com")
		assert.Error(t, err)
	})
}

func TestRepository_ClearCart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET cart_data = '{}'::jsonb WHERE id = \$1`).
			WithArgs(uint(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ClearCart(ctx, 9))
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET cart_data = '{}'::jsonb WHERE id = \$1`).
			WithArgs(uint(9)).
			WillReturnError(errors.New("db down"))

		assert.Error(t, repo.ClearCart(ctx, 9))
	})
}
