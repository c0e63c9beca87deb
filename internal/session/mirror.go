package session

import (
	"context"
	"time"

	"github.com/dayuer/haggle-go/internal/redis"
)

// Mirror receives a copy of every session change. Failures are the
// mirror's problem; the in-memory session stays authoritative.
type Mirror interface {
	Put(ctx context.Context, snap Snapshot)
	Forget(ctx context.Context, id string)
}

// RedisMirror stores snapshots in Redis when a client is connected.
type RedisMirror struct {
	TTL time.Duration
}

func (m RedisMirror) Put(ctx context.Context, snap Snapshot) {
	redis.MirrorSession(ctx, snap.ID, snap, m.TTL)
}

func (m RedisMirror) Forget(ctx context.Context, id string) {
	redis.ForgetSession(ctx, id)
}

type noMirror struct{}

func (noMirror) Put(context.Context, Snapshot)  {}
func (noMirror) Forget(context.Context, string) {}
