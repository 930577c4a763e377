// Package redis provides the read-side report cache. Invalidation bumps a
// per-account version counter instead of scanning keys: stale reports are
// simply never read again and fall out by TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agrinova/agrinova/internal/ledger"
	"github.com/agrinova/agrinova/pkg/logger"
)

const (
	// DefaultTTL bounds how long a report can outlive its account version
	DefaultTTL = 60 * time.Second

	// KeyPrefix namespaces report cache keys
	KeyPrefix = "report:"
)

// ReportCache is a Redis-backed ledger.ReportCache
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewReportCache creates a report cache with the default TTL
func NewReportCache(client *redis.Client, log *logger.Logger) *ReportCache {
	return NewReportCacheWithTTL(client, DefaultTTL, log)
}

// NewReportCacheWithTTL creates a report cache with a custom TTL
func NewReportCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *ReportCache {
	return &ReportCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "report_cache"),
	}
}

// GetReport retrieves a cached report for the account and filter, if one
// exists under the account's current version. The version is returned
// either way so a subsequent SetReport stores against the state this read
// observed.
func (c *ReportCache) GetReport(ctx context.Context, accountID uuid.UUID, filter ledger.EntryFilter) (*ledger.Report, int64, bool, error) {
	version, err := c.currentVersion(ctx, accountID)
	if err != nil {
		return nil, 0, false, err
	}

	key := c.reportKey(accountID, version, filter)

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("report cache miss", "account_id", accountID)
		return nil, version, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var report ledger.Report
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, 0, false, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}

	c.logger.Debug("report cache hit", "account_id", accountID)
	return &report, version, true, nil
}

// SetReport stores a report under the version captured by the GetReport
// miss that preceded the scan. If a write invalidated the account in
// between, the entry lands under the stale version and is never read,
// instead of masking the newer ledger state until the TTL runs out.
func (c *ReportCache) SetReport(ctx context.Context, accountID uuid.UUID, filter ledger.EntryFilter, report *ledger.Report, version int64) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := c.reportKey(accountID, version, filter)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached report: %w", err)
	}

	return nil
}

// Invalidate drops every cached report for the account by bumping its
// version counter. Reports cached under older versions become unreachable
// and expire on their own.
func (c *ReportCache) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	if err := c.client.Incr(ctx, c.versionKey(accountID)).Err(); err != nil {
		return fmt.Errorf("failed to bump report cache version: %w", err)
	}
	return nil
}

func (c *ReportCache) currentVersion(ctx context.Context, accountID uuid.UUID) (int64, error) {
	version, err := c.client.Get(ctx, c.versionKey(accountID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get report cache version: %w", err)
	}
	return version, nil
}

func (c *ReportCache) versionKey(accountID uuid.UUID) string {
	return fmt.Sprintf("%sver:%s", KeyPrefix, accountID)
}

// reportKey fingerprints the filter so distinct time ranges and kinds cache
// independently
func (c *ReportCache) reportKey(accountID uuid.UUID, version int64, filter ledger.EntryFilter) string {
	var from, to int64
	if filter.From != nil {
		from = filter.From.UnixMilli()
	}
	if filter.To != nil {
		to = filter.To.UnixMilli()
	}

	kind := ""
	if filter.Kind != nil {
		kind = string(*filter.Kind)
	}

	return fmt.Sprintf("%s%s:v%d:%d:%d:%s", KeyPrefix, accountID, version, from, to, kind)
}
