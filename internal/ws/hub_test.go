package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHub_RegisterAndHasClients(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	assert.False(t, h.HasClients("user1"))

	client := NewClient(h, nil, "user1", nil)
	h.Register(client)
	waitFor(t, func() bool { return h.HasClients("user1") })
}

func TestHub_SendToUserDeliversToSession(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	client := NewClient(h, nil, "user1", nil)
	h.Register(client)
	waitFor(t, func() bool { return h.HasClients("user1") })

	h.SendToUser("user1", &Event{Type: EventMessageNew})

	select {
	case data := <-client.send:
		assert.Contains(t, string(data), EventMessageNew)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

// A session that stops draining its send buffer gets evicted by the
// broadcast loop. Eviction mutates the client set, so it must stay
// consistent with concurrent HasClients readers (run with -race).
func TestHub_SlowSessionEvictedWhileHasClientsPolls(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	client := NewClient(h, nil, "user1", nil)
	h.Register(client)
	waitFor(t, func() bool { return h.HasClients("user1") })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			h.HasClients("user1")
		}
	}()

	// No WritePump is draining, so the send buffer fills and the
	// broadcast loop evicts the session
	for i := 0; i < 600; i++ {
		h.SendToUser("user1", &Event{Type: EventConversationChanged})
	}

	<-done
	waitFor(t, func() bool { return !h.HasClients("user1") })
}
