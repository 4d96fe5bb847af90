/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
)

// Transport publishes encoded events to a broker.
type Transport interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// MirrorConfig tunes the circuit breaker around the transport.
type MirrorConfig struct {
	NodeID         string
	MaxFailures    int
	Cooldown       time.Duration
	PublishTimeout time.Duration
}

// Mirror forwards every local event to a Transport. After MaxFailures consecutive publish
// errors it stops trying for Cooldown, then probes again with the next event.
type Mirror struct {
	bus       *events.Bus
	transport Transport
	cfg       MirrorConfig
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	failCount int
	openUntil time.Time
	published int
	skipped   int
}

// NewMirror creates a mirror of bus onto transport.
func NewMirror(bus *events.Bus, transport Transport, cfg MirrorConfig, logger zerolog.Logger) *Mirror {
	if cfg.NodeID == "" {
		cfg.NodeID = NodeID()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &Mirror{
		bus:       bus,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With().Str("component", "event_mirror").Str("transport", transport.Name()).Logger(),
		now:       time.Now,
	}
}

// Run subscribes to every event type and forwards until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, eventType := range events.Types {
		sub := m.bus.Subscribe(eventType)
		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer m.bus.Unsubscribe(eventType, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					m.Forward(ctx, eventType, payload)
				}
			}
		}(eventType, sub)
	}

	m.logger.Info().Str("node_id", m.cfg.NodeID).Int("event_types", len(events.Types)).Msg("event mirror started")
	<-ctx.Done()
	wg.Wait()
	m.logger.Info().Msg("event mirror stopped")
	return ctx.Err()
}

// Forward publishes one event. It reports whether the transport accepted it.
func (m *Mirror) Forward(ctx context.Context, eventType events.EventType, payload events.Payload) bool {
	if m.open() {
		m.mu.Lock()
		m.skipped++
		m.mu.Unlock()
		return false
	}

	data, err := marshalMessage(eventType, payload, m.cfg.NodeID, m.now())
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to encode event")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()
	if err := m.transport.Publish(ctx, Subject(eventType), data); err != nil {
		m.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish event")
		m.handleFailure()
		return false
	}

	m.mu.Lock()
	m.failCount = 0
	m.published++
	m.mu.Unlock()
	return true
}

func (m *Mirror) open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.openUntil)
}

func (m *Mirror) handleFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount++
	if m.failCount >= m.cfg.MaxFailures {
		m.openUntil = m.now().Add(m.cfg.Cooldown)
		m.failCount = 0
		m.logger.Warn().Dur("cooldown", m.cfg.Cooldown).Msg("publish failure threshold reached, pausing mirror")
	}
}

// Stats returns how many events were published and how many were skipped while paused.
func (m *Mirror) Stats() (published, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.skipped
}

// Close closes the transport.
func (m *Mirror) Close() error {
	return m.transport.Close()
}
