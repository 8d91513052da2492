// File: storage/service.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package storage

import (
	"context"
	"time"

	"github.com/momentics/isorec/affinity"
	"github.com/momentics/isorec/api"
)

// Service is the drain loop: it writes the engine whenever a producer posts
// a message and on every tick, and performs a final write when stopped.
type Service struct {
	engine   *Engine
	box      *ChannelPostBox
	interval time.Duration
}

// NewService binds a drain loop to e. box must be the post box e was
// built with. A zero interval disables periodic writes.
func NewService(e *Engine, box *ChannelPostBox, interval time.Duration) *Service {
	return &Service{engine: e, box: box, interval: interval}
}

// Run blocks until ctx is cancelled or MsgShutdown is received.
func (s *Service) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	if cfg := s.engine.cfg; cfg.PinDrain {
		unpin, err := affinity.Pin(cfg.DrainCPU)
		if err != nil {
			log.Warningf("drain service runs unpinned: %s", err)
		} else {
			log.Infof("drain service pinned to cpu %d", cfg.DrainCPU)
		}
		defer unpin()
	}
	log.Infof("drain service started")
	defer log.Infof("drain service stopped")
	for {
		select {
		case <-ctx.Done():
			s.write("final")
			return nil
		case msg := <-s.box.C():
			s.write(msg.String())
			if msg == api.MsgShutdown {
				return nil
			}
		case <-tick:
			s.write("tick")
		}
	}
}

func (s *Service) write(reason string) {
	n, err := s.engine.Write()
	if err != nil {
		log.Warningf("drain (%s): %s", reason, err)
		return
	}
	log.Debugf("drain (%s): %d bytes", reason, n)
}
