package internal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type MissingSubscriberError struct {
	Id uint32
}

func (e *MissingSubscriberError) Error() string {
	return fmt.Sprintf("Missing subscriber with id=%d", e.Id)
}

type StoreClosedError struct{}

func (e *StoreClosedError) Error() string {
	return "Snapshot store is closed - cannot add new subscriber"
}

type TooManySubscribersError struct{}

func (e *TooManySubscribersError) Error() string {
	return "Too many subscribers are connected - cannot add new subscriber"
}

// Subscription delivers the latest value only: a subscriber that falls behind
// skips intermediate values instead of blocking the publisher.
type Subscription[T any] struct {
	Id      uint32
	Updates <-chan T

	updates chan T
}

// SnapshotStore holds the latest published value and fans it out to
// subscribers.
type SnapshotStore[T any] struct {
	MaxSubscribers int

	nextSubscriberId atomic.Uint32

	mut_latest sync.RWMutex
	latest     T
	hasLatest  bool
	version    uint64

	mut_subscribers sync.RWMutex
	subscribers     map[uint32]*Subscription[T]
	closed          bool
}

func CreateSnapshotStore[T any](maxSubscribers int) *SnapshotStore[T] {
	return &SnapshotStore[T]{
		MaxSubscribers:   maxSubscribers,
		nextSubscriberId: atomic.Uint32{},
		mut_latest:       sync.RWMutex{},
		mut_subscribers:  sync.RWMutex{},
		subscribers:      make(map[uint32]*Subscription[T]),
	}
}

// Latest returns the latest value and its version. Version 0 means nothing was
// published yet.
func (store *SnapshotStore[T]) Latest() (T, uint64) {
	store.mut_latest.RLock()
	defer store.mut_latest.RUnlock()
	return store.latest, store.version
}

func (store *SnapshotStore[T]) Publish(value T) {
	func() {
		store.mut_latest.Lock()
		defer store.mut_latest.Unlock()
		store.latest = value
		store.hasLatest = true
		store.version++
	}()

	store.mut_subscribers.RLock()
	defer store.mut_subscribers.RUnlock()

	for _, sub := range store.subscribers {
		offerLatest(sub.updates, value)
	}
}

func offerLatest[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		// Full: drop the stale value and retry.
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers a subscriber. If a value was already published it is
// immediately available on the subscription.
func (store *SnapshotStore[T]) Subscribe() (*Subscription[T], error) {
	store.mut_subscribers.Lock()
	defer store.mut_subscribers.Unlock()

	if store.closed {
		return nil, &StoreClosedError{}
	}
	if store.MaxSubscribers > 0 && len(store.subscribers) >= store.MaxSubscribers {
		return nil, &TooManySubscribersError{}
	}

	updates := make(chan T, 1)
	sub := &Subscription[T]{
		Id:      store.nextSubscriberId.Add(1),
		Updates: updates,
		updates: updates,
	}

	store.mut_latest.RLock()
	if store.hasLatest {
		updates <- store.latest
	}
	store.mut_latest.RUnlock()

	store.subscribers[sub.Id] = sub
	return sub, nil
}

// Unsubscribe removes the subscriber and closes its channel.
func (store *SnapshotStore[T]) Unsubscribe(subscriberId uint32) error {
	store.mut_subscribers.Lock()
	defer store.mut_subscribers.Unlock()

	sub, has := store.subscribers[subscriberId]
	if !has {
		return &MissingSubscriberError{Id: subscriberId}
	}
	delete(store.subscribers, subscriberId)
	close(sub.updates)
	return nil
}

func (store *SnapshotStore[T]) SubscriberCount() int {
	store.mut_subscribers.RLock()
	defer store.mut_subscribers.RUnlock()
	return len(store.subscribers)
}

// Close ends every subscription. Later Subscribe calls fail.
func (store *SnapshotStore[T]) Close() {
	store.mut_subscribers.Lock()
	defer store.mut_subscribers.Unlock()

	if store.closed {
		return
	}
	store.closed = true
	for id, sub := range store.subscribers {
		delete(store.subscribers, id)
		close(sub.updates)
	}
}
