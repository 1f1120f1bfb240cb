// Package channel contains the outbound delivery transports. Each sender
// covers one channel token; the dispatch engine selects one through the
// Registry and never inspects rendered message bodies.
package channel

import (
	"context"

	"github.com/apporte/notify/internal/notification"
)

// Sender performs the side effect of delivering one message to one
// recipient, or fails with a reason.
type Sender interface {
	Name() string
	Send(ctx context.Context, rcpt notification.Recipient, req *notification.Request) error
}

// Registry maps channel tokens to senders.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry builds a registry from the given senders, keyed by Name().
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[string]Sender, len(senders))}
	for _, s := range senders {
		r.senders[s.Name()] = s
	}
	return r
}

// Get returns the sender for a channel token.
func (r *Registry) Get(channel string) (Sender, bool) {
	s, ok := r.senders[channel]
	return s, ok
}

// Channels lists the registered channel tokens.
func (r *Registry) Channels() []string {
	out := make([]string, 0, len(r.senders))
	for name := range r.senders {
		out = append(out, name)
	}
	return out
}
