package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

const liveTTL = 7 * 24 * time.Hour

// Redis stores live pointers as JSON under "exam:live:{examID}".
type Redis struct {
	client *redis.Client
}

var _ LiveIndex = (*Redis)(nil)

func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func liveKey(examID string) string {
	return "exam:live:" + examID
}

func (c *Redis) SetLive(ctx context.Context, p model.LivePointer) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, liveKey(p.ExamID), data, liveTTL).Err()
}

func (c *Redis) ClearLive(ctx context.Context, examID string) error {
	return c.client.Del(ctx, liveKey(examID)).Err()
}

func (c *Redis) GetLive(ctx context.Context, examID string) (model.LivePointer, error) {
	var p model.LivePointer
	data, err := c.client.Get(ctx, liveKey(examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return p, fmt.Errorf("%w: live pointer for %s", model.ErrNotFound, examID)
	}
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

func (c *Redis) Close() error {
	return c.client.Close()
}
