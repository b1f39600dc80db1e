package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dynastyquant/fundingpulse/internal/market"
)

// RedisStore backs cooldown and rate-window state with Redis, following
// the optional-external-store shape of data/cache.Cache (NewAuto's
// REDIS_ADDR-gated construction), generalized from a byte blob
// cache to the two specific operations the governor needs: per-symbol
// cooldown expiry (a plain key with PEXPIRE) and a shared rate-window
// counter mutated via WATCH/MULTI optimistic locking, go-redis/v9's
// standard transaction idiom.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr/db. The connection is not verified here;
// the first operation's error drives the governor's permanent failover.
func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

const (
	cooldownKeyPrefix = "fundingpulse:cooldown:"
	rateWindowKey     = "fundingpulse:rate_window"
	storeCallTimeout  = 500 * time.Millisecond
)

func cooldownKey(sym market.Symbol) string {
	return cooldownKeyPrefix + string(sym)
}

// GetCooldownExpiry reads the stored expiry for symbol.
func (r *RedisStore) GetCooldownExpiry(ctx context.Context, symbol market.Symbol) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	v, err := r.client.Get(ctx, cooldownKey(symbol)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// SetCooldown stores symbol's cooldown expiry with a matching TTL so the
// key disappears on its own once the window elapses.
func (r *RedisStore) SetCooldown(ctx context.Context, symbol market.Symbol, expiryMs int64) error {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	ttl := time.Until(time.UnixMilli(expiryMs))
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, cooldownKey(symbol), expiryMs, ttl).Err()
}

type rateWindowValue struct {
	Count      int   `json:"count"`
	ResetEpoch int64 `json:"reset_epoch_ms"`
}

// PeekRate returns the current window state without mutating it.
func (r *RedisStore) PeekRate(ctx context.Context, now time.Time, windowDuration time.Duration) (int, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	val, err := r.readWindow(ctx, now, windowDuration)
	if err != nil {
		return 0, 0, err
	}
	return val.Count, val.ResetEpoch, nil
}

func (r *RedisStore) readWindow(ctx context.Context, now time.Time, windowDuration time.Duration) (rateWindowValue, error) {
	raw, err := r.client.Get(ctx, rateWindowKey).Bytes()
	if err == redis.Nil {
		return rateWindowValue{Count: 0, ResetEpoch: now.Add(windowDuration).UnixMilli()}, nil
	}
	if err != nil {
		return rateWindowValue{}, err
	}
	var val rateWindowValue
	if err := json.Unmarshal(raw, &val); err != nil {
		return rateWindowValue{}, err
	}
	if now.UnixMilli() >= val.ResetEpoch {
		val = rateWindowValue{Count: 0, ResetEpoch: now.Add(windowDuration).UnixMilli()}
	}
	return val, nil
}

// IncrementRate increments the shared hourly counter using WATCH/MULTI
// optimistic locking: if a concurrent writer changes the key between the
// read and the transaction, go-redis returns redis.TxFailedErr. A single
// attempt is made; the Governor treats that error like any other store
// error and fails over to in-process state (the Governor already
// serializes its own callers with its mutex, so a conflict can only arise
// from an external writer).
func (r *RedisStore) IncrementRate(ctx context.Context, now time.Time, windowDuration time.Duration) (int, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	var result rateWindowValue
	txf := func(tx *redis.Tx) error {
		val, err := r.readWindow(ctx, now, windowDuration)
		if err != nil {
			return err
		}
		val.Count++
		result = val

		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			ttl := time.Until(time.UnixMilli(val.ResetEpoch))
			if ttl <= 0 {
				ttl = time.Second
			}
			pipe.Set(ctx, rateWindowKey, encoded, ttl)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, rateWindowKey); err != nil {
		return 0, 0, err
	}
	return result.Count, result.ResetEpoch, nil
}
