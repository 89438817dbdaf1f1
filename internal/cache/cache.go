package cache

import (
	"context"
	"time"
)

// ReportCache holds serialized analytics reports. Values are raw JSON so one
// cache serves every report shape.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
