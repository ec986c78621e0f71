package readmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// RedisLocationRepoConfig configures the Redis-backed LocationRepo.
type RedisLocationRepoConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	TTL          time.Duration
	BatchSize    int
	BatchFlushMs int
}

func DefaultRedisLocationRepoConfig() RedisLocationRepoConfig {
	return RedisLocationRepoConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "worldkernel:loc:",
		TTL:          5 * time.Minute,
		BatchSize:    200,
		BatchFlushMs: 100,
	}
}

// RedisLocationRepo implements LocationRepo over go-redis, buffering
// Put calls and flushing them in batches on a ticker so a burst of
// per-tick position updates does not become one round trip each.
type RedisLocationRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	batchSize int

	batchMu     sync.Mutex
	batchBuffer map[string]geo.Pos
	ticker      *time.Ticker
	shutdown    chan struct{}
	wg          sync.WaitGroup
}

func NewRedisLocationRepo(cfg RedisLocationRepoConfig) (*RedisLocationRepo, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("readmodel: connect redis: %w", err)
	}

	r := &RedisLocationRepo{
		client:      client,
		keyPrefix:   cfg.KeyPrefix,
		ttl:         cfg.TTL,
		batchSize:   cfg.BatchSize,
		batchBuffer: make(map[string]geo.Pos),
		ticker:      time.NewTicker(time.Duration(cfg.BatchFlushMs) * time.Millisecond),
		shutdown:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flusher()
	return r, nil
}

func (r *RedisLocationRepo) key(agentID string) string { return r.keyPrefix + agentID }

func (r *RedisLocationRepo) Put(ctx context.Context, agentID string, pos geo.Pos) error {
	if agentID == "" {
		return fmt.Errorf("readmodel: empty agent id")
	}

	r.batchMu.Lock()
	r.batchBuffer[agentID] = pos
	full := len(r.batchBuffer) >= r.batchSize
	var flushNow map[string]geo.Pos
	if full {
		flushNow = r.batchBuffer
		r.batchBuffer = make(map[string]geo.Pos)
	}
	r.batchMu.Unlock()

	if flushNow != nil {
		return r.flush(ctx, flushNow)
	}
	return nil
}

func (r *RedisLocationRepo) Get(ctx context.Context, agentID string) (geo.Pos, bool, error) {
	data, err := r.client.Get(ctx, r.key(agentID)).Result()
	if err == redis.Nil {
		return geo.Pos{}, false, nil
	}
	if err != nil {
		return geo.Pos{}, false, fmt.Errorf("readmodel: get %s: %w", agentID, err)
	}
	var pos geo.Pos
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return geo.Pos{}, false, fmt.Errorf("readmodel: unmarshal %s: %w", agentID, err)
	}
	return pos, true, nil
}

func (r *RedisLocationRepo) Delete(ctx context.Context, agentID string) error {
	r.batchMu.Lock()
	delete(r.batchBuffer, agentID)
	r.batchMu.Unlock()

	if err := r.client.Del(ctx, r.key(agentID)).Err(); err != nil {
		return fmt.Errorf("readmodel: delete %s: %w", agentID, err)
	}
	return nil
}

func (r *RedisLocationRepo) BatchPut(ctx context.Context, positions map[string]geo.Pos) error {
	return r.flush(ctx, positions)
}

func (r *RedisLocationRepo) flusher() {
	defer r.wg.Done()
	for {
		select {
		case <-r.shutdown:
			return
		case <-r.ticker.C:
			r.batchMu.Lock()
			if len(r.batchBuffer) == 0 {
				r.batchMu.Unlock()
				continue
			}
			batch := r.batchBuffer
			r.batchBuffer = make(map[string]geo.Pos)
			r.batchMu.Unlock()

			_ = r.flush(context.Background(), batch)
		}
	}
}

func (r *RedisLocationRepo) flush(ctx context.Context, batch map[string]geo.Pos) error {
	if len(batch) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for agentID, pos := range batch {
		data, err := json.Marshal(pos)
		if err != nil {
			continue
		}
		pipe.Set(ctx, r.key(agentID), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("readmodel: flush batch: %w", err)
	}
	return nil
}

func (r *RedisLocationRepo) Close() error {
	close(r.shutdown)
	r.wg.Wait()

	r.batchMu.Lock()
	remaining := r.batchBuffer
	r.batchBuffer = make(map[string]geo.Pos)
	r.batchMu.Unlock()
	if len(remaining) > 0 {
		_ = r.flush(context.Background(), remaining)
	}

	return r.client.Close()
}
