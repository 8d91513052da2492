// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording post box for storage tests.

package fake

import (
	"sync"

	"github.com/momentics/isorec/api"
)

// PostBox records every message it receives.
type PostBox struct {
	mu       sync.Mutex
	messages []api.Message
}

var _ api.PostBox = (*PostBox)(nil)

func (p *PostBox) Post(msg api.Message) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
}

func (p *PostBox) Messages() []api.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Message(nil), p.messages...)
}

// Count returns how many times msg was posted.
func (p *PostBox) Count(msg api.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m == msg {
			n++
		}
	}
	return n
}
