package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lichtrinh-service/internal/schedule"
)

const keyPrefix = "lichtrinh:task:"

// Tasks is a read-through Redis cache in front of a schedule.TaskSource.
// Redis failures degrade to the source; they never fail a lookup.
type Tasks struct {
	client *redis.Client
	source schedule.TaskSource
	ttl    time.Duration
	log    *zap.Logger
}

func NewTasks(client *redis.Client, source schedule.TaskSource, ttl time.Duration, log *zap.Logger) *Tasks {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Tasks{client: client, source: source, ttl: ttl, log: log}
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func Key(taskID int64) string {
	return keyPrefix + strconv.FormatInt(taskID, 10)
}

func (c *Tasks) FetchTask(ctx context.Context, taskID int64) (*schedule.Task, error) {
	raw, err := c.client.Get(ctx, Key(taskID)).Bytes()
	switch {
	case err == nil:
		var t schedule.Task
		if jerr := json.Unmarshal(raw, &t); jerr == nil {
			return &t, nil
		}
		c.log.Warn("discarding corrupt cached task", zap.Int64("task_id", taskID))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("task cache read failed", zap.Int64("task_id", taskID), zap.Error(err))
	}

	t, err := c.source.FetchTask(ctx, taskID)
	if err != nil || t == nil {
		return t, err
	}
	if b, jerr := json.Marshal(t); jerr == nil {
		if serr := c.client.Set(ctx, Key(taskID), b, c.ttl).Err(); serr != nil {
			c.log.Warn("task cache write failed", zap.Int64("task_id", taskID), zap.Error(serr))
		}
	}
	return t, nil
}

// Invalidate drops a task after it was updated or deleted.
func (c *Tasks) Invalidate(ctx context.Context, taskID int64) {
	if err := c.client.Del(ctx, Key(taskID)).Err(); err != nil {
		c.log.Warn("task cache invalidate failed", zap.Int64("task_id", taskID), zap.Error(err))
	}
}
