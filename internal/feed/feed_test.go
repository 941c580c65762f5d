package feed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemory()
	first, err := b.Subscribe(ctx, "students")
	require.NoError(t, err)
	second, err := b.Subscribe(ctx, "students")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "teachers")
	require.NoError(t, err)

	c := Change{Collection: "students", Op: OpDelete, ID: "s1"}
	require.NoError(t, b.Publish(ctx, c))

	assert.Equal(t, c, <-first)
	assert.Equal(t, c, <-second)
	select {
	case got := <-other:
		t.Fatalf("teachers subscriber got %+v", got)
	default:
	}
}

func TestInMemoryCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewInMemory()
	ch, err := b.Subscribe(ctx, "students")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, Change{Collection: "students", Op: OpUpdate}))
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("burst was not coalesced")
	default:
	}
}

func TestInMemoryUnsubscribeOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewInMemory()
	ch, err := b.Subscribe(ctx, "students")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	require.NoError(t, b.Publish(context.Background(), Change{Collection: "students"}))
}

func TestSerialize(t *testing.T) {
	c := Change{Collection: "classSchedules", Op: OpUpdate, ID: "Class 1"}
	got, err := deserialize("classSchedules", serialize(c))
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = deserialize("classSchedules", "garbage")
	assert.Error(t, err)
}

func TestRedisChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "schoolboard:changes:students"},
		{prefix: "school", want: "school:students"},
		{prefix: "schoolboard:changes:", want: "schoolboard:changes:students"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRedis(client, tt.prefix).channel("students"))
		})
	}
}
