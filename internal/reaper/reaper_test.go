package reaper

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/ledger"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]ledger.Entry, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Entry), args.Error(1)
}

func (m *MockStore) Transition(ctx context.Context, affiliateID, from, to string) (bool, error) {
	args := m.Called(ctx, affiliateID, from, to)
	return args.Bool(0), args.Error(1)
}

type MockDeleter struct {
	mock.Mock
}

func (m *MockDeleter) DeleteAffiliate(ctx context.Context, affiliateID string) error {
	return m.Called(ctx, affiliateID).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OrphansFound(ctx context.Context, report *Report) error {
	return m.Called(ctx, report).Error(0)
}

func entries(ids ...string) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, ledger.Entry{AffiliateID: id, Email: id + "@example.com", Status: ledger.StatusPending})
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, nil, Config{}, nil)
	require.Error(t, err)

	_, err = New(new(MockStore), nil, nil, Config{DeleteUpstream: true}, nil)
	require.Error(t, err)

	r, err := New(new(MockStore), nil, nil, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestRun_FlagOnly(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)
	store.On("ListStale", mock.Anything, 48*time.Hour, 100).Return(entries("a1", "a2", "a3"), nil)
	store.On("Transition", mock.Anything, "a1", ledger.StatusPending, ledger.StatusFlagged).Return(true, nil)
	store.On("Transition", mock.Anything, "a2", ledger.StatusPending, ledger.StatusFlagged).Return(false, nil)
	store.On("Transition", mock.Anything, "a3", ledger.StatusPending, ledger.StatusFlagged).Return(false, assert.AnError)
	notifier.On("OrphansFound", mock.Anything, mock.AnythingOfType("*reaper.Report")).Return(nil)

	r, err := New(store, nil, notifier, Config{}, logger.NewTestLogger(t))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []string{"a1"}, report.Flagged)
	assert.Equal(t, []string{"a2"}, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "a3", report.Failed[0].AffiliateID)
	assert.Empty(t, report.Deleted)
	notifier.AssertExpectations(t)
}

func TestRun_DeleteUpstream(t *testing.T) {
	store := new(MockStore)
	deleter := new(MockDeleter)
	store.On("ListStale", mock.Anything, time.Hour, 10).Return(entries("a1", "a2", "a3"), nil)
	store.On("Transition", mock.Anything, mock.Anything, ledger.StatusPending, ledger.StatusFlagged).Return(true, nil)
	store.On("Transition", mock.Anything, mock.Anything, ledger.StatusFlagged, ledger.StatusDeleted).Return(true, nil)
	deleter.On("DeleteAffiliate", mock.Anything, "a1").Return(nil)
	deleter.On("DeleteAffiliate", mock.Anything, "a2").Return(assert.AnError)
	deleter.On("DeleteAffiliate", mock.Anything, "a3").Return(nil)

	r, err := New(store, deleter, nil, Config{
		OrphanAfter: time.Hour, BatchSize: 10, Concurrency: 2, DeleteUpstream: true,
	}, logger.NewTestLogger(t))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	sort.Strings(report.Deleted)
	assert.Equal(t, []string{"a1", "a3"}, report.Deleted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "a2", report.Failed[0].AffiliateID)
	store.AssertNotCalled(t, "Transition", mock.Anything, "a2", ledger.StatusFlagged, ledger.StatusDeleted)
}

func TestRun_SkippedEntryIsNotDeleted(t *testing.T) {
	store := new(MockStore)
	deleter := new(MockDeleter)
	store.On("ListStale", mock.Anything, mock.Anything, mock.Anything).Return(entries("a1"), nil)
	store.On("Transition", mock.Anything, "a1", ledger.StatusPending, ledger.StatusFlagged).Return(false, nil)

	r, err := New(store, deleter, nil, Config{DeleteUpstream: true}, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, report.Skipped)
	deleter.AssertNotCalled(t, "DeleteAffiliate", mock.Anything, mock.Anything)
}

func TestRun_LostFlagIsNotReportedDeleted(t *testing.T) {
	store := new(MockStore)
	deleter := new(MockDeleter)
	notifier := new(MockNotifier)
	store.On("ListStale", mock.Anything, mock.Anything, mock.Anything).Return(entries("a1", "a2"), nil)
	store.On("Transition", mock.Anything, mock.Anything, ledger.StatusPending, ledger.StatusFlagged).Return(true, nil)
	store.On("Transition", mock.Anything, "a1", ledger.StatusFlagged, ledger.StatusDeleted).Return(true, nil)
	store.On("Transition", mock.Anything, "a2", ledger.StatusFlagged, ledger.StatusDeleted).Return(false, nil)
	deleter.On("DeleteAffiliate", mock.Anything, mock.Anything).Return(nil)
	notifier.On("OrphansFound", mock.Anything, mock.AnythingOfType("*reaper.Report")).Return(nil)

	r, err := New(store, deleter, notifier, Config{DeleteUpstream: true, Concurrency: 1}, logger.NewTestLogger(t))
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, report.Deleted)
	assert.Equal(t, []string{"a2"}, report.Conflicts)
	assert.Empty(t, report.Failed)
	notifier.AssertExpectations(t)
}

func TestRun_DryRun(t *testing.T) {
	store := new(MockStore)
	deleter := new(MockDeleter)
	notifier := new(MockNotifier)
	store.On("ListStale", mock.Anything, mock.Anything, mock.Anything).Return(entries("a1", "a2"), nil)

	r, err := New(store, deleter, notifier, Config{DeleteUpstream: true, DryRun: true}, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Flagged, 2)
	store.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deleter.AssertNotCalled(t, "DeleteAffiliate", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "OrphansFound", mock.Anything, mock.Anything)
}

func TestRun_ListError(t *testing.T) {
	store := new(MockStore)
	store.On("ListStale", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	r, err := New(store, nil, nil, Config{}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list stale affiliates")
}

func TestRun_NothingStale(t *testing.T) {
	store := new(MockStore)
	notifier := new(MockNotifier)
	store.On("ListStale", mock.Anything, mock.Anything, mock.Anything).Return([]ledger.Entry{}, nil)

	r, err := New(store, nil, notifier, Config{}, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	notifier.AssertNotCalled(t, "OrphansFound", mock.Anything, mock.Anything)
}
