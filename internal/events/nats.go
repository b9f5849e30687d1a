package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/fmp-data/internal/model"
)

// publisher is the part of *nats.Conn used by NATSPublisher.
type publisher interface {
	Publish(subject string, data []byte) error
}

// PublisherStats contains runtime statistics.
type PublisherStats struct {
	Published int64
	Errors    int64
}

// NATSPublisher forwards hub events to NATS as JSON, one subject per
// entity: <subject>.<entity>.
type NATSPublisher struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	hub     *Hub
	logger  *slog.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	metrics PublisherStats
}

// DialNATS connects to url and returns a publisher for subject.
func DialNATS(url, subject string, hub *Hub, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("fmp-ingester"),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	p := newPublisher(nc, subject, hub, logger)
	p.conn = nc
	return p, nil
}

func newPublisher(pub publisher, subject string, hub *Hub, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		pub:     pub,
		subject: subject,
		hub:     hub,
		logger:  logger,
	}
}

// Start subscribes to the hub and publishes until Stop.
func (p *NATSPublisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	events, unsubscribe := p.hub.Subscribe()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer unsubscribe()
		p.publishLoop(events)
	}()

	p.logger.Info("nats publisher started", "subject", p.subject)
	return nil
}

// Stop stops publishing, flushes pending messages and closes the connection.
func (p *NATSPublisher) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("nats publisher stop timed out")
	}

	if p.conn != nil {
		flush := func() error { return p.conn.FlushTimeout(5 * time.Second) }
		if _, ok := ctx.Deadline(); ok {
			flush = func() error { return p.conn.FlushWithContext(ctx) }
		}
		if err := flush(); err != nil {
			p.logger.Warn("nats flush failed", "error", err)
		}
		p.conn.Close()
	}
	p.logger.Info("nats publisher stopped")
	return nil
}

// Stats returns current statistics.
func (p *NATSPublisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *NATSPublisher) publishLoop(events <-chan model.JobEvent) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.publish(ev)
		}
	}
}

func (p *NATSPublisher) publish(ev model.JobEvent) {
	data, err := json.Marshal(ev)
	if err == nil {
		err = p.pub.Publish(p.subject+"."+ev.Job.Entity, data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.metrics.Errors++
		p.logger.Warn("publish job event failed", "entity", ev.Job.Entity, "error", err)
		return
	}
	p.metrics.Published++
}
