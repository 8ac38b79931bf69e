package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_Latest_beforePublish(t *testing.T) {
	store := CreateSnapshotStore[string](0)
	value, version := store.Latest()
	assert.Equal(t, "", value)
	assert.Equal(t, uint64(0), version)
}

func TestSnapshotStore_Publish_bumpsVersion(t *testing.T) {
	store := CreateSnapshotStore[string](0)
	store.Publish("a")
	store.Publish("b")

	value, version := store.Latest()
	assert.Equal(t, "b", value)
	assert.Equal(t, uint64(2), version)
}

func TestSnapshotStore_Subscribe_receivesCurrentValue(t *testing.T) {
	store := CreateSnapshotStore[int](0)
	store.Publish(7)

	sub, err := store.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 7, <-sub.Updates)
}

func TestSnapshotStore_Publish_latestWins(t *testing.T) {
	store := CreateSnapshotStore[int](0)
	sub, err := store.Subscribe()
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		store.Publish(i)
	}

	assert.Equal(t, 5, <-sub.Updates)
	select {
	case v := <-sub.Updates:
		t.Fatalf("unexpected stale value %d", v)
	default:
	}
}

func TestSnapshotStore_Subscribe_limit(t *testing.T) {
	store := CreateSnapshotStore[int](1)
	_, err := store.Subscribe()
	require.NoError(t, err)

	_, err = store.Subscribe()
	var tooMany *TooManySubscribersError
	assert.True(t, errors.As(err, &tooMany))
}

func TestSnapshotStore_Unsubscribe(t *testing.T) {
	store := CreateSnapshotStore[int](0)
	sub, err := store.Subscribe()
	require.NoError(t, err)

	require.NoError(t, store.Unsubscribe(sub.Id))
	_, open := <-sub.Updates
	assert.False(t, open)
	assert.Equal(t, 0, store.SubscriberCount())

	var missing *MissingSubscriberError
	assert.True(t, errors.As(store.Unsubscribe(sub.Id), &missing))
}

func TestSnapshotStore_Close(t *testing.T) {
	store := CreateSnapshotStore[int](0)
	sub, err := store.Subscribe()
	require.NoError(t, err)

	store.Close()
	store.Close()

	_, open := <-sub.Updates
	assert.False(t, open)

	_, err = store.Subscribe()
	var closed *StoreClosedError
	assert.True(t, errors.As(err, &closed))
	store.Publish(1)
}
