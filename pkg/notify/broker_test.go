package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	b := NewBroker[int]()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish(i)
	}

	var got []int
	for i := 0; i < 5; i++ {
		select {
		case v := <-sub:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for value")
		}
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := NewBroker[string]()
	b.Start()
	defer b.Stop()

	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish("hello")

	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-c)
}
