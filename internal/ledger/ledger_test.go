package ledger

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l, err := New(db)
	require.NoError(t, err)
	return l, mock
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestRecordPending(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO pending_affiliates (affiliate_id,email,parent_id,status) VALUES ($1,$2,$3,$4) ON CONFLICT (affiliate_id) DO NOTHING",
	)).WithArgs("aff_1", "jane@example.com", "ref_1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.RecordPending(context.Background(), "aff_1", "jane@example.com", "ref_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPending_Error(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec("INSERT INTO pending_affiliates").WillReturnError(assert.AnError)

	err := l.RecordPending(context.Background(), "aff_1", "jane@example.com", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record pending affiliate")
}

func TestMarkFinalized(t *testing.T) {
	l, mock := newMockLedger(t)
	query := regexp.QuoteMeta(
		"UPDATE pending_affiliates SET status = $1, program_id = $2, updated_at = NOW() WHERE affiliate_id = $3 AND status = $4",
	)

	mock.ExpectExec(query).WithArgs(StatusFinalized, "stasher-affiliate-program", "aff_1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := l.MarkFinalized(context.Background(), "aff_1", "stasher-affiliate-program")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Already flagged by the reaper: the guarded update matches nothing.
	mock.ExpectExec(query).WithArgs(StatusFinalized, "stasher-affiliate-program", "aff_2", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = l.MarkFinalized(context.Background(), "aff_2", "stasher-affiliate-program")
	require.NoError(t, err)
	assert.False(t, claimed)

	mock.ExpectExec(query).WillReturnError(assert.AnError)
	_, err = l.MarkFinalized(context.Background(), "aff_3", "stasher-affiliate-program")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark affiliate finalized")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	l, mock := newMockLedger(t)
	query := regexp.QuoteMeta("SELECT status FROM pending_affiliates WHERE affiliate_id = $1")

	mock.ExpectQuery(query).WithArgs("aff_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusFlagged))
	status, found, err := l.Status(context.Background(), "aff_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, StatusFlagged, status)

	mock.ExpectQuery(query).WithArgs("aff_missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	_, found, err = l.Status(context.Background(), "aff_missing")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectQuery(query).WithArgs("aff_2").WillReturnError(assert.AnError)
	_, _, err = l.Status(context.Background(), "aff_2")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStale(t *testing.T) {
	l, mock := newMockLedger(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	created := now.Add(-72 * time.Hour)

	rows := sqlmock.NewRows([]string{"affiliate_id", "email", "parent_id", "status", "program_id", "created_at"}).
		AddRow("aff_1", "a@example.com", "", StatusPending, "", created).
		AddRow("aff_2", "b@example.com", "ref_1", StatusPending, "", created.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT affiliate_id, email, parent_id, status, program_id, created_at FROM pending_affiliates WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT 10",
	)).WithArgs(StatusPending, now.Add(-48*time.Hour)).WillReturnRows(rows)

	entries, err := l.ListStale(context.Background(), 48*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "aff_1", entries[0].AffiliateID)
	assert.Equal(t, "ref_1", entries[1].ParentID)
	assert.Equal(t, 72*time.Hour, entries[0].Age(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStale_ScanError(t *testing.T) {
	l, mock := newMockLedger(t)
	rows := sqlmock.NewRows([]string{"affiliate_id"}).AddRow("aff_1")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err := l.ListStale(context.Background(), time.Hour, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan stale entry")
}

func TestTransition(t *testing.T) {
	l, mock := newMockLedger(t)
	query := regexp.QuoteMeta(
		"UPDATE pending_affiliates SET status = $1, updated_at = NOW() WHERE affiliate_id = $2 AND status = $3",
	)

	mock.ExpectExec(query).WithArgs(StatusFlagged, "aff_1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	changed, err := l.Transition(context.Background(), "aff_1", StatusPending, StatusFlagged)
	require.NoError(t, err)
	assert.True(t, changed)

	mock.ExpectExec(query).WithArgs(StatusDeleted, "aff_2", StatusFlagged).
		WillReturnResult(sqlmock.NewResult(0, 0))
	changed, err = l.Transition(context.Background(), "aff_2", StatusFlagged, StatusDeleted)
	require.NoError(t, err)
	assert.False(t, changed)

	mock.ExpectExec(query).WillReturnError(assert.AnError)
	_, err = l.Transition(context.Background(), "aff_3", StatusPending, StatusFlagged)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
