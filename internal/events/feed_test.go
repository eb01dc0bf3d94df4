package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInOrder(t *testing.T) {
	var f Feed[int]
	var got []string
	f.Subscribe(func(v int) { got = append(got, "a") })
	f.Subscribe(func(v int) { got = append(got, "b") })

	f.Publish(1)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	var f Feed[string]
	var delivered []string
	f.Subscribe(func(v string) { panic("boom") })
	f.Subscribe(func(v string) { delivered = append(delivered, v) })

	assert.NotPanics(t, func() { f.Publish("x") })
	assert.Equal(t, []string{"x"}, delivered)
}

func TestUnsubscribe(t *testing.T) {
	var f Feed[int]
	calls := 0
	sub := f.Subscribe(func(int) { calls++ })
	f.Publish(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	f.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, f.Len())
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	var f Feed[int]
	var sub *Subscription
	calls := 0
	sub = f.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})
	other := 0
	f.Subscribe(func(int) { other++ })

	f.Publish(1)
	f.Publish(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}
