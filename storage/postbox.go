// File: storage/postbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import "github.com/momentics/isorec/api"

// ChannelPostBox delivers messages over a buffered channel. Post never
// blocks: a message that does not fit is coalesced into the pending ones.
type ChannelPostBox struct {
	ch chan api.Message
}

func NewChannelPostBox(capacity int) *ChannelPostBox {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelPostBox{ch: make(chan api.Message, capacity)}
}

func (p *ChannelPostBox) Post(msg api.Message) {
	select {
	case p.ch <- msg:
	default:
	}
}

// C returns the receive side.
func (p *ChannelPostBox) C() <-chan api.Message { return p.ch }
