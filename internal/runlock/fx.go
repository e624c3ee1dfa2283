package runlock

import (
	"github.com/azerion/cloudledger/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLocker wires the redis locker when REDIS_ADDR is set, otherwise the
// in-process fallback. Single-instance deployments work without redis;
// multi-instance ones need it for cross-process exclusion.
func NewLocker(cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Named("runlock").Info("redis not configured, using in-process run lock")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	log.Named("runlock").Info("using redis run lock", zap.String("addr", cfg.RedisAddr))
	return NewRedisLocker(client)
}

var Module = fx.Module("runlock",
	fx.Provide(NewLocker),
)
