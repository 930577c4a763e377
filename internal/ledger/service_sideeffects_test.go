package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinova/agrinova/internal/ledger"
)

// fakeReportCache mirrors the versioned invalidation scheme of the Redis
// cache: Invalidate bumps a counter and reads only see entries stored
// under the current version.
type fakeReportCache struct {
	mu          sync.Mutex
	version     int64
	reports     map[string]*ledger.Report
	invalidated int
	failReads   bool
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{reports: make(map[string]*ledger.Report)}
}

func (c *fakeReportCache) key(version int64, accountID uuid.UUID, filter ledger.EntryFilter) string {
	key := fmt.Sprintf("%s:v%d", accountID, version)
	if filter.From != nil {
		key += filter.From.String()
	}
	if filter.To != nil {
		key += filter.To.String()
	}
	return key
}

func (c *fakeReportCache) GetReport(_ context.Context, accountID uuid.UUID, filter ledger.EntryFilter) (*ledger.Report, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, 0, false, errors.New("cache unavailable")
	}
	report, ok := c.reports[c.key(c.version, accountID, filter)]
	return report, c.version, ok, nil
}

func (c *fakeReportCache) SetReport(_ context.Context, accountID uuid.UUID, filter ledger.EntryFilter, report *ledger.Report, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[c.key(version, accountID, filter)] = report
	return nil
}

func (c *fakeReportCache) Invalidate(_ context.Context, accountID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.version++
	return nil
}

// cached returns the report stored under the current version, if any
func (c *fakeReportCache) cached(accountID uuid.UUID, filter ledger.EntryFilter) (*ledger.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.reports[c.key(c.version, accountID, filter)]
	return report, ok
}

type fakePublisher struct {
	mu      sync.Mutex
	entries []*ledger.Entry
	fail    bool
}

func (p *fakePublisher) PublishTransactionCompleted(_ context.Context, entry *ledger.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.entries = append(p.entries, entry)
	return nil
}

func TestGetFinancialReport_CacheInvalidatedOnWrite(t *testing.T) {
	cache := newFakeReportCache()
	svc, _ := newTestService(t, testSigningKey, ledger.WithReportCache(cache))
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale, Amount: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	// First read populates the cache, second read is served from it
	first, err := svc.GetFinancialReport(ctx, accountID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), first.TotalIncome)

	second, err := svc.GetFinancialReport(ctx, accountID, nil, nil)
	require.NoError(t, err)
	stored, ok := cache.cached(accountID, ledger.EntryFilter{AccountID: accountID})
	require.True(t, ok)
	assert.Same(t, stored, second)

	// The next write makes the cached report unreachable so readers see
	// fresh numbers
	_, err = svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindExpense, Category: ledger.CategorySeeds, Amount: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidated)
	_, ok = cache.cached(accountID, ledger.EntryFilter{AccountID: accountID})
	assert.False(t, ok)

	fresh, err := svc.GetFinancialReport(ctx, accountID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), fresh.TotalExpenses)
}

func TestGetFinancialReport_CacheFailureFallsThrough(t *testing.T) {
	cache := newFakeReportCache()
	cache.failReads = true
	svc, _ := newTestService(t, testSigningKey, ledger.WithReportCache(cache))
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale, Amount: 5000,
	})
	require.NoError(t, err)

	report, err := svc.GetFinancialReport(ctx, accountID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), report.TotalIncome)
}

func TestRecordTransaction_PublishesCompletedEvent(t *testing.T) {
	publisher := &fakePublisher{}
	svc, _ := newTestService(t, testSigningKey, ledger.WithEventPublisher(publisher))
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	entry, err := svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale, Amount: 7500,
	})
	require.NoError(t, err)

	require.Len(t, publisher.entries, 1)
	assert.Equal(t, entry.ID, publisher.entries[0].ID)
}

func TestRecordTransaction_IdempotentReplayDoesNotRepublish(t *testing.T) {
	publisher := &fakePublisher{}
	svc, _ := newTestService(t, testSigningKey, ledger.WithEventPublisher(publisher))
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	params := ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale,
		Amount: 7500, IdempotencyKey: "mobile-retry-7",
	}

	_, err := svc.RecordTransaction(ctx, params)
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, params)
	require.NoError(t, err)

	assert.Len(t, publisher.entries, 1)
}

func TestRecordTransaction_PublishFailureDoesNotFailWrite(t *testing.T) {
	publisher := &fakePublisher{fail: true}
	svc, _ := newTestService(t, testSigningKey, ledger.WithEventPublisher(publisher))
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	entry, err := svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale, Amount: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)

	balance, err := svc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance)
}

// Reversals invalidate the report cache without republishing an event
func TestReverseEntry_InvalidatesCacheOnly(t *testing.T) {
	cache := newFakeReportCache()
	publisher := &fakePublisher{}
	svc, _ := newTestService(t, testSigningKey,
		ledger.WithReportCache(cache),
		ledger.WithEventPublisher(publisher),
	)
	accountID := newTestAccount(t, svc)
	ctx := context.Background()

	entry, err := svc.RecordTransaction(ctx, ledger.RecordParams{
		AccountID: accountID, Kind: ledger.KindIncome, Category: ledger.CategorySale, Amount: 4000,
	})
	require.NoError(t, err)
	require.Len(t, publisher.entries, 1)
	require.Equal(t, 1, cache.invalidated)

	_, err = svc.ReverseEntry(ctx, entry.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, cache.invalidated)
	assert.Len(t, publisher.entries, 1)
}
