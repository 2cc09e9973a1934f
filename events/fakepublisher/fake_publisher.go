package fakepublisher

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-oidc-provider/events"
)

var _ events.Publisher = (*FakePublisher)(nil)

// FakePublisher records published events.
type FakePublisher struct {
	events []events.Event
	Err    error
	lock   sync.Mutex
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (p *FakePublisher) Publish(_ context.Context, e events.Event) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.events = append(p.events, e)
	return p.Err
}

func (p *FakePublisher) Events() []events.Event {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Types returns the recorded event types in order.
func (p *FakePublisher) Types() []events.Type {
	p.lock.Lock()
	defer p.lock.Unlock()
	types := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}
