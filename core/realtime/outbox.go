package realtime

import (
	"sync"

	"github.com/gofrs/uuid/v5"

	"tenantdesk/core/auth"
)

// Outbox is a buffered Subscriber. The transport drains C() and calls Close when the
// connection ends.
type Outbox struct {
	id     string
	actor  auth.Actor
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func NewOutbox(actor auth.Actor, size int) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{id: uuid.Must(uuid.NewV4()).String(), actor: actor, ch: make(chan Message, size)}
}

func (o *Outbox) ID() string { return o.id }

func (o *Outbox) Actor() auth.Actor { return o.actor }

func (o *Outbox) C() <-chan Message { return o.ch }

func (o *Outbox) Deliver(msg Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- msg:
		return true
	default:
		return false
	}
}

func (o *Outbox) Alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed
}

func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
