// Package events carries index lifecycle messages between replicas over
// Redis pub/sub.
//
// Channels:
//
//	EVENT_INDEX_RELOADED  published after a new snapshot is swapped in
//	CMD_RELOAD_INDEX      asks every replica to rebuild its snapshot
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChannelIndexReloaded = "EVENT_INDEX_RELOADED"
	ChannelReloadIndex   = "CMD_RELOAD_INDEX"
)

// IndexReloaded describes a freshly published snapshot.
type IndexReloaded struct {
	Origin        string    `json:"origin"`
	SnapshotID    string    `json:"snapshotId"`
	SourceVersion time.Time `json:"sourceVersion"`
	Jobs          int       `json:"jobs"`
	LoadedAt      time.Time `json:"loadedAt"`
}

// ReloadRequest is the payload of CMD_RELOAD_INDEX.
type ReloadRequest struct {
	Origin      string    `json:"origin"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Notifier receives lifecycle notifications from the refresher.
type Notifier interface {
	IndexReloaded(ctx context.Context, ev IndexReloaded) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) IndexReloaded(context.Context, IndexReloaded) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) IndexReloaded(ctx context.Context, ev IndexReloaded) error {
	var errs []error
	for _, n := range m {
		if err := n.IndexReloaded(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisBus publishes and consumes the channels above. Origin identifies this
// process so it can ignore its own reload commands.
type RedisBus struct {
	rdb    *redis.Client
	origin string
	logger *zap.Logger
}

// NewRedisBus returns a bus using rdb.
func NewRedisBus(rdb *redis.Client, origin string, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, origin: origin, logger: logger}
}

// Origin returns the identifier stamped on outgoing messages.
func (b *RedisBus) Origin() string { return b.origin }

// IndexReloaded implements Notifier.
func (b *RedisBus) IndexReloaded(ctx context.Context, ev IndexReloaded) error {
	ev.Origin = b.origin
	return b.publish(ctx, ChannelIndexReloaded, ev)
}

// RequestReload asks the other replicas to rebuild.
func (b *RedisBus) RequestReload(ctx context.Context) error {
	return b.publish(ctx, ChannelReloadIndex, ReloadRequest{Origin: b.origin, RequestedAt: time.Now().UTC()})
}

func (b *RedisBus) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// ListenReload subscribes to CMD_RELOAD_INDEX and calls fn for every request
// sent by another process. It blocks until ctx is cancelled.
func (b *RedisBus) ListenReload(ctx context.Context, fn func(ctx context.Context, req ReloadRequest)) error {
	sub := b.rdb.Subscribe(ctx, ChannelReloadIndex)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChannelReloadIndex, err)
	}
	b.logger.Info("listening for reload commands", zap.String("channel", ChannelReloadIndex))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			req, handle := b.decodeReload(msg.Payload)
			if handle {
				fn(ctx, req)
			}
		}
	}
}

func (b *RedisBus) decodeReload(payload string) (ReloadRequest, bool) {
	var req ReloadRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		b.logger.Warn("malformed reload command", zap.String("payload", payload), zap.Error(err))
		return req, false
	}
	if req.Origin != "" && req.Origin == b.origin {
		return req, false
	}
	return req, true
}
