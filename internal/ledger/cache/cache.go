// Package cache stores report results for a short time. Entries are namespaced
// by a per-restaurant generation so that one increment invalidates every cached
// report of that restaurant.
package cache

import (
	"context"
	"time"
)

// Slot names where a report is stored under the generation that was current
// when it was looked up. An empty Slot stores nothing.
type Slot string

// ReportCache is implemented by RedisReportCache and NoopReportCache.
//
// A miss returns the Slot to fill. Filling it after an Invalidate writes under
// the old generation, so a report computed before a change is never served
// after it.
type ReportCache interface {
	// Get decodes a cached value into dest and reports whether it was found.
	Get(ctx context.Context, restaurantID, key string, dest interface{}) (Slot, bool, error)
	Set(ctx context.Context, slot Slot, value interface{}, ttl time.Duration) error
	// Invalidate drops every cached report of the restaurant.
	Invalidate(ctx context.Context, restaurantID string) error
}

// NoopReportCache never stores anything.
type NoopReportCache struct{}

func (NoopReportCache) Get(context.Context, string, string, interface{}) (Slot, bool, error) {
	return "", false, nil
}

func (NoopReportCache) Set(context.Context, Slot, interface{}, time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(context.Context, string) error {
	return nil
}
