package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

func TestPostgresGetDelegation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	ctx := context.Background()

	want := &custody.Delegation{
		ID:         "d1",
		Controller: "c1",
		RuleCount:  2,
		Status:     custody.StatusApproved,
		Ledger:     spend.NewLedger(2),
	}
	body, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM delegations WHERE id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	got, err := s.GetDelegation(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RuleCount, got.RuleCount)
	assert.Equal(t, want.Status, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDelegationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM delegations WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	_, err = s.GetDelegation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutRequestUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	req := &spend.Request{Delegation: "d1", Count: 1}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO requests (id, body) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body")).
		WithArgs("r1", body).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.PutRequest(context.Background(), "r1", req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteRequestNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM requests WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteRequest(context.Background(), "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
