package feed

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Op names the kind of write that produced a change.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change announces that a document in a collection was written.
type Change struct {
	Collection string
	Op         Op
	ID         string
}

// Publisher announces committed changes.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Broker is the abstraction over different change-feed backends.
// Subscribers are notified at least once after each burst of changes;
// bursts may be coalesced, so consumers re-read the collection on receipt.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, collection string) (<-chan Change, error)
}

// InMemory fans changes out to subscribers in this process.
type InMemory struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

// NewInMemory creates an in-process broker for dev/testing.
func NewInMemory() *InMemory {
	return &InMemory{subs: map[string]map[chan Change]struct{}{}}
}

// Publish notifies every subscriber of the collection without blocking.
func (b *InMemory) Publish(ctx context.Context, c Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[c.Collection] {
		select {
		case ch <- c:
		default:
			// a notification is already pending for this subscriber
		}
	}
	return nil
}

// Subscribe returns a channel closed when ctx is done.
func (b *InMemory) Subscribe(ctx context.Context, collection string) (<-chan Change, error) {
	ch := make(chan Change, 1)
	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = map[chan Change]struct{}{}
	}
	b.subs[collection][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[collection], ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Redis broadcasts changes over Redis pub/sub so every API replica sees them.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a broker publishing on "<prefix>:<collection>" channels.
func NewRedis(client *redis.Client, prefix string) *Redis {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "schoolboard:changes"
	}
	return &Redis{client: client, prefix: prefix}
}

func (b *Redis) channel(collection string) string {
	return b.prefix + ":" + collection
}

// Publish sends the change to the collection channel.
func (b *Redis) Publish(ctx context.Context, c Change) error {
	return b.client.Publish(ctx, b.channel(c.Collection), serialize(c)).Err()
}

// Subscribe streams changes for one collection until ctx is done.
func (b *Redis) Subscribe(ctx context.Context, collection string) (<-chan Change, error) {
	ps := b.client.Subscribe(ctx, b.channel(collection))
	// wait for the subscription to be confirmed so no change is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Change, 1)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c, err := deserialize(collection, msg.Payload)
				if err != nil {
					log.Printf("feed: dropping malformed change on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, nil
}

// serialize stores changes as Op|ID.
func serialize(c Change) string {
	return string(c.Op) + "|" + c.ID
}

func deserialize(collection, s string) (Change, error) {
	op, id, ok := strings.Cut(s, "|")
	if !ok {
		return Change{}, errMalformed
	}
	return Change{Collection: collection, Op: Op(op), ID: id}, nil
}

var errMalformed = errors.New("malformed change payload")
