package dedup

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
)

// OpenSeenStore builds the seen-set backend selected by conf.
func OpenSeenStore(ctx context.Context, conf config.DedupConf) (SeenStore, error) {
	switch conf.Backend {
	case "", "memory":
		return NewMemoryStore(conf.TTL), nil
	case "redis":
		rs, err := NewRedisStore(ctx, RedisConfig{
			Addr:      conf.Redis.Addr,
			Password:  conf.Redis.Password,
			DB:        conf.Redis.DB,
			KeyPrefix: conf.Redis.KeyPrefix,
			TTL:       conf.TTL,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported dedup backend %q", conf.Backend)
	}
}
