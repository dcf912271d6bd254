package redisclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/usage_console/internal/config"
)

const clientName = "usage-console"

// New builds a client for the snapshot cache and key mutation limiter. URL may
// be a redis:// or rediss:// URL, a unix socket path, or a bare host:port.
func New(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := options(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.ClientName = clientName
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}

	client := redis.NewClient(opts)
	client.AddHook(maintNotificationsFilter{})
	return client, nil
}

func options(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, fmt.Errorf("redis url is required")
	case strings.HasPrefix(raw, "/"):
		return &redis.Options{Network: "unix", Addr: raw}, nil
	case strings.Contains(raw, "://"):
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	default:
		return &redis.Options{Addr: raw}, nil
	}
}

// Ping verifies connectivity to Redis with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// maintNotificationsFilter drops the CLIENT MAINT_NOTIFICATIONS handshake,
// which servers without the command reject.
type maintNotificationsFilter struct{}

func isMaintNotifications(cmd redis.Cmder) bool {
	if !strings.EqualFold(cmd.FullName(), "client") || len(cmd.Args()) < 2 {
		return false
	}
	name, ok := cmd.Args()[1].(string)
	return ok && strings.EqualFold(name, "maint_notifications")
}

func (maintNotificationsFilter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (maintNotificationsFilter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isMaintNotifications(cmd) {
			return nil
		}
		return next(ctx, cmd)
	}
}

func (maintNotificationsFilter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		kept := cmds[:0]
		for _, cmd := range cmds {
			if !isMaintNotifications(cmd) {
				kept = append(kept, cmd)
			}
		}
		return next(ctx, kept)
	}
}
