package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/orchestrator"
)

const natsProbeName = "nats"

// natsConn is the subset of *nats.Conn used for announcements. Defining an
// interface here allows test doubles to be injected without a live NATS
// server.
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSAnnouncer publishes index lifecycle events so other services learn
// when the vector index is usable.
type NATSAnnouncer struct {
	url     string
	subject string
	cb      *gobreaker.CircuitBreaker
	connect func(url string) (natsConn, func(), error)
}

// NewNATSAnnouncer constructs a NATSAnnouncer. No connection is made at
// construction time; connections are opened lazily inside Announce and Probe.
func NewNATSAnnouncer(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSAnnouncer {
	return &NATSAnnouncer{
		url:     cfg.URL,
		subject: cfg.Subject,
		cb:      cb,
		connect: realNATSConnect,
	}
}

// Announce publishes ev as JSON on the configured subject and waits for the
// server to acknowledge the flush.
func (a *NATSAnnouncer) Announce(ctx context.Context, ev orchestrator.IndexEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding index event: %w", err)
	}

	_, err = a.cb.Execute(func() (any, error) {
		nc, cleanup, err := a.connect(a.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := nc.Publish(a.subject, payload); err != nil {
			return nil, fmt.Errorf("publishing to %s: %w", a.subject, err)
		}
		if err := nc.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("flushing %s: %w", a.subject, err)
		}
		return nil, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Probe verifies NATS connectivity with a connect and flush round trip.
func (a *NATSAnnouncer) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := a.cb.Execute(func() (any, error) {
		nc, cleanup, err := a.connect(a.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := nc.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("flush: %w", err)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return orchestrator.ProbeResult{
			Name:      natsProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return orchestrator.ProbeResult{
		Name:      natsProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

// realNATSConnect opens a real NATS connection and returns it plus a cleanup
// function that closes the connection.
func realNATSConnect(url string) (natsConn, func(), error) {
	nc, err := nats.Connect(url, nats.Name("vectorgate"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, func() { nc.Close() }, nil
}
