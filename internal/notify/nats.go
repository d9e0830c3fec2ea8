// Package notify publishes build results to external consumers over NATS.
// It is optional; the serve and build commands run fine without a broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docforge/internal/events"
)

type Config struct {
	URL     string
	Subject string
}

// Publisher forwards BuildFinished events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	bus     *events.Bus
	logger  *slog.Logger
}

// buildMessage is the wire payload, stable for external consumers.
type buildMessage struct {
	Generation uint64    `json:"generation"`
	State      string    `json:"state"`
	Changed    []string  `json:"changed"`
	Built      int       `json:"built"`
	CacheHits  int       `json:"cache_hits"`
	Failed     []string  `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

func NewPublisher(cfg Config, bus *events.Bus, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "docforge.builds"
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", cfg.URL, "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject, bus: bus, logger: logger}, nil
}

// Run forwards BuildFinished events until the context is canceled. Publish
// failures are logged, never fatal; the broker is a best-effort sink.
func (p *Publisher) Run(ctx context.Context) error {
	ch, unsubscribe := events.Subscribe[events.BuildFinished](p.bus, 16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.publish(evt); err != nil {
				p.logger.Warn("Failed to publish build result", "generation", evt.Generation, "error", err)
			}
		}
	}
}

func (p *Publisher) publish(evt events.BuildFinished) error {
	msg := buildMessage{
		Generation: evt.Generation,
		State:      string(evt.State),
		FinishedAt: evt.FinishedAt,
	}
	for _, id := range evt.Changed {
		msg.Changed = append(msg.Changed, string(id))
	}
	if evt.Result != nil {
		msg.Built = evt.Result.Built
		msg.CacheHits = evt.Result.CacheHits
		msg.DurationMS = evt.Result.Duration.Milliseconds()
		for _, id := range evt.Result.Failed {
			msg.Failed = append(msg.Failed, string(id))
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal build message: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
