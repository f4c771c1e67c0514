package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/emissary/internal/review"
)

const lockPoll = 50 * time.Millisecond

// releaseScript deletes a lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis stores each checkpoint as a JSON string under <prefix>cp:<thread>,
// indexes threads by next node in a set, and publishes review notices on
// <prefix>review:pending. Locks are SET NX keys with a TTL.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRedis creates a Redis store.
func NewRedis(rdb *redis.Client, prefix string, lockTTL time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		lockTTL: lockTTL,
		logger:  logger.With("system", "checkpoint"),
	}
}

func (r *Redis) key(threadID string) string { return r.prefix + "cp:" + threadID }
func (r *Redis) nodeKey(node string) string { return r.prefix + "node:" + node }
func (r *Redis) lockKey(threadID string) string { return r.prefix + "lock:" + threadID }

// PendingChannel is the pub/sub channel carrying review.Pending notices.
func (r *Redis) PendingChannel() string { return r.prefix + "review:pending" }

func (r *Redis) Save(ctx context.Context, cp Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	if cp.Record == nil {
		return fmt.Errorf("save %s: nil record", cp.ThreadID)
	}

	cp = stamp(cp)
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	prev, err := r.rdb.Get(ctx, r.key(cp.ThreadID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read previous checkpoint: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(prev) > 0 {
			var old Checkpoint
			if json.Unmarshal(prev, &old) == nil && old.NextNode != cp.NextNode {
				pipe.SRem(ctx, r.nodeKey(old.NextNode), cp.ThreadID)
			}
		}
		pipe.Set(ctx, r.key(cp.ThreadID), data, 0)
		pipe.SAdd(ctx, r.nodeKey(cp.NextNode), cp.ThreadID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	data, err := r.rdb.Get(ctx, r.key(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

func (r *Redis) Waiting(ctx context.Context, node string) ([]Checkpoint, error) {
	ids, err := r.rdb.SMembers(ctx, r.nodeKey(node)).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting threads: %w", err)
	}

	out := make([]Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := r.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// Lock polls SET NX until the lock is won or ctx is done. The TTL bounds how
// long a crashed holder can block a thread.
func (r *Redis) Lock(ctx context.Context, threadID string) (func(), error) {
	key := r.lockKey(threadID)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", threadID, err)
		}
		if ok {
			break
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := releaseScript.Run(context.Background(), r.rdb, []string{key}, token).Err(); err != nil {
			r.logger.Warn("lock release failed", "thread_id", threadID, "error", err)
		}
	}, nil
}

// NotifyPending publishes p on PendingChannel.
func (r *Redis) NotifyPending(ctx context.Context, p review.Pending) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.PendingChannel(), data).Err()
}

// SubscribePending streams review notices until ctx is done.
func (r *Redis) SubscribePending(ctx context.Context) <-chan review.Pending {
	out := make(chan review.Pending)
	sub := r.rdb.Subscribe(ctx, r.PendingChannel())

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p review.Pending
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("malformed review notice", "error", err)
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
