// Package subscription carries board change events over Redis pub/sub.
package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

const reconnectDelay = time.Second

// Channel publishes change events to a Redis channel and listens for them.
type Channel struct {
	rc      *redis.Client
	name    string
	log     *log.Entry
	backoff time.Duration
}

func NewChannel(rc *redis.Client, name string, logger *log.Entry) *Channel {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Channel{rc: rc, name: name, log: logger.WithField("channel", name), backoff: reconnectDelay}
}

func (c *Channel) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return c.rc.Publish(ctx, c.name, payload).Err()
}

// Listen delivers every decodable event to onChange until ctx is cancelled.
// A dropped subscription is re-established after a short pause.
func (c *Channel) Listen(ctx context.Context, onChange func(domain.ChangeEvent)) error {
	for {
		sub := c.rc.Subscribe(ctx, c.name)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return nil
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.ChangeEvent
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					c.log.WithError(err).Error("unable to parse change event")
					continue
				}
				onChange(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}
