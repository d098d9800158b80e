package session

import (
	"context"
	"sync"
)

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Heartbeat is the keepalive loop of one negotiated session.
type Heartbeat struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// ID returns the server-assigned session id.
func (h *Heartbeat) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Stop ends the loop and waits for it to exit. Stop on a nil or already
// stopped Heartbeat does nothing.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Done is closed once the loop has exited, whether stopped or failed. A
// nil Heartbeat reports an already closed channel.
func (h *Heartbeat) Done() <-chan struct{} {
	if h == nil {
		return closedDone
	}
	return h.done
}

// Err returns the *HeartbeatError that ended the loop, or nil.
func (h *Heartbeat) Err() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Heartbeat) fail(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
