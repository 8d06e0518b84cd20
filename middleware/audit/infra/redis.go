package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/audit"

	"github.com/redis/go-redis/v9"
)

// RedisSink grava contadores de auditoria em Redis (best-effort).
//
// Estrutura das chaves:
//   - <prefix>:total        → hash {evento: contagem}
//   - <prefix>:minute:<ts>  → hash por minuto (expira com ttl)
//   - <prefix>:action       → hash {evento:ação: contagem}
//   - <prefix>:key:<k>      → hash por chave de request (opcional, cuidado
//     com cardinalidade)
type RedisSink struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisSinkOption func(*RedisSink)

func WithSinkPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) { s.prefix = strings.Trim(prefix, ":") }
}

func WithSinkTTL(d time.Duration) RedisSinkOption {
	return func(s *RedisSink) { s.ttl = d }
}

func WithSinkBucket(bucket string) RedisSinkOption {
	return func(s *RedisSink) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithSinkTrackKeys(track bool) RedisSinkOption {
	return func(s *RedisSink) { s.trackKeys = track }
}

func NewRedisSink(rdb *redis.Client, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		rdb:    rdb,
		prefix: "gateway:audit",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) Log(ctx context.Context, ev audit.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	name := strings.TrimSpace(ev.Name)
	if name == "" {
		name = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", name, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, name, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if action := strings.TrimSpace(ev.Action); action != "" {
		pipe.HIncrBy(ctx, s.prefix+":action", name+":"+action, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(ev.Key); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, name, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
