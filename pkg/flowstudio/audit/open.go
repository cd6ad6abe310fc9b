package audit

import (
	"context"
	"fmt"
)

// Supported drivers for Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Open creates a store by driver name. The DSN is a file path for sqlite and
// a redis:// URL for redis; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("audit driver %q requires a dsn", driver)
		}
		return NewSQLiteStore(dsn)
	case DriverRedis:
		if dsn == "" {
			return nil, fmt.Errorf("audit driver %q requires a dsn", driver)
		}
		return OpenRedisStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}

// LoadRun decodes every record of a run in sequence order.
func LoadRun(ctx context.Context, store Store, runID string) ([]*Record, error) {
	infos, err := store.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(infos))
	for _, info := range infos {
		data, err := store.Load(ctx, runID, info.NodeID)
		if err != nil {
			return nil, fmt.Errorf("load record %d: %w", info.NodeID, err)
		}
		rec, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", info.NodeID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
