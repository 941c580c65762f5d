package store

import (
	"context"
	"log"
	"sync"

	"schoolboard/internal/feed"
)

// Notifying publishes a feed.Change after every committed write.
type Notifying struct {
	Store
	pub feed.Publisher
}

// WithFeed wraps s so writes are announced on pub.
func WithFeed(s Store, pub feed.Publisher) *Notifying {
	return &Notifying{Store: s, pub: pub}
}

func (n *Notifying) announce(ctx context.Context, changes ...feed.Change) {
	for _, c := range changes {
		if err := n.pub.Publish(context.WithoutCancel(ctx), c); err != nil {
			log.Printf("store: publishing %s change on %s failed: %v", c.Op, c.Collection, err)
		}
	}
}

func (n *Notifying) Create(ctx context.Context, collection, id string, data any) (string, error) {
	id, err := n.Store.Create(ctx, collection, id, data)
	if err == nil {
		n.announce(ctx, feed.Change{Collection: collection, Op: feed.OpCreate, ID: id})
	}
	return id, err
}

func (n *Notifying) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	err := n.Store.Update(ctx, collection, id, fields)
	if err == nil {
		n.announce(ctx, feed.Change{Collection: collection, Op: feed.OpUpdate, ID: id})
	}
	return err
}

func (n *Notifying) Delete(ctx context.Context, collection, id string) error {
	err := n.Store.Delete(ctx, collection, id)
	if err == nil {
		n.announce(ctx, feed.Change{Collection: collection, Op: feed.OpDelete, ID: id})
	}
	return err
}

// RunInTx announces the changes of the last successful attempt after commit.
func (n *Notifying) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var rec *recordingTx
	err := n.Store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		rec = &recordingTx{Tx: tx}
		return fn(ctx, rec)
	})
	if err == nil && rec != nil {
		n.announce(ctx, rec.changes...)
	}
	return err
}

type recordingTx struct {
	Tx
	mu      sync.Mutex
	changes []feed.Change
}

func (r *recordingTx) record(c feed.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recordingTx) Create(ctx context.Context, collection, id string, data any) (string, error) {
	id, err := r.Tx.Create(ctx, collection, id, data)
	if err == nil {
		r.record(feed.Change{Collection: collection, Op: feed.OpCreate, ID: id})
	}
	return id, err
}

func (r *recordingTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	err := r.Tx.Update(ctx, collection, id, fields)
	if err == nil {
		r.record(feed.Change{Collection: collection, Op: feed.OpUpdate, ID: id})
	}
	return err
}

func (r *recordingTx) Delete(ctx context.Context, collection, id string) error {
	err := r.Tx.Delete(ctx, collection, id)
	if err == nil {
		r.record(feed.Change{Collection: collection, Op: feed.OpDelete, ID: id})
	}
	return err
}
