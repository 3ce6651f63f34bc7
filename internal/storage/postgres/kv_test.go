package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestKV_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewKV(db, "alice")
	ctx := context.Background()

	mock.ExpectQuery(`SELECT value FROM kv_store WHERE namespace=\$1 AND key=\$2`).
		WithArgs("alice", "auth_tokens").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"accessToken":"a"}`)))
	v, err := s.Get(ctx, "auth_tokens")
	require.NoError(t, err)
	require.Equal(t, `{"accessToken":"a"}`, string(v))

	mock.ExpectQuery(`SELECT value FROM kv_store WHERE namespace=\$1 AND key=\$2`).
		WithArgs("alice", "auth_tokens").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(ctx, "auth_tokens")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`SELECT value FROM kv_store WHERE namespace=\$1 AND key=\$2`).
		WithArgs("alice", "auth_tokens").
		WillReturnError(errors.New("conn closed"))
	_, err = s.Get(ctx, "auth_tokens")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Set_Upserts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewKV(db, "alice")

	mock.ExpectExec(`INSERT INTO kv_store \(namespace, key, value, updated_at\) VALUES \(\$1, \$2, \$3, now\(\)\) ON CONFLICT \(namespace, key\) DO UPDATE SET value=EXCLUDED.value, updated_at=now\(\)`).
		WithArgs("alice", "auth_tokens", []byte("v")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.Set(context.Background(), "auth_tokens", []byte("v")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewKV(db, "alice")

	mock.ExpectExec(`DELETE FROM kv_store WHERE namespace=\$1 AND key=\$2`).
		WithArgs("alice", "auth_tokens").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, s.Delete(context.Background(), "auth_tokens"))
	require.NoError(t, mock.ExpectationsWereMet())
}
