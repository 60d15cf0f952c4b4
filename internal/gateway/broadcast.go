package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/world"
)

// AlertRecord tracks a sent alert for history.
type AlertRecord struct {
	Alert   *Alert    `json:"alert"`
	SentAt  time.Time `json:"sent_at"`
	Targets []string  `json:"targets"`
}

const maxHistory = 100

// Broadcaster turns status changes into alerts. It is a world.TickObserver.
// Only transitions into Absent, and recoveries out of it, are announced.
type Broadcaster struct {
	gateway *Gateway
	history []AlertRecord
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster backed by the given gateway.
func NewBroadcaster(gw *Gateway, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gw,
		logger:  logger,
	}
}

// AfterTick implements world.TickObserver.
func (b *Broadcaster) AfterTick(ctx context.Context, report world.TickReport) {
	for _, ch := range report.Changes {
		alert := alertFor(ch)
		if alert == nil {
			continue
		}
		if err := b.Send(ctx, alert); err != nil {
			b.logger.Warn("status alert not delivered",
				zap.String("agent", ch.AgentID),
				zap.Error(err))
		}
	}
}

func alertFor(ch world.StatusChange) *Alert {
	switch {
	case ch.To == world.StatusAbsent:
		return &Alert{
			Type:    AlertAbsent,
			AgentID: ch.AgentID,
			Title:   fmt.Sprintf("%s is absent", ch.Name),
			Content: fmt.Sprintf("%s is not at the scheduled department (last seen at %s, was %s).", ch.Name, ch.Location, ch.From),
			At:      ch.At,
		}
	case ch.From == world.StatusAbsent:
		return &Alert{
			Type:    AlertReturned,
			AgentID: ch.AgentID,
			Title:   fmt.Sprintf("%s is back", ch.Name),
			Content: fmt.Sprintf("%s is now %s.", ch.Name, ch.To),
			At:      ch.At,
		}
	}
	return nil
}

// Send delivers an alert to all or selected platforms via the gateway.
func (b *Broadcaster) Send(ctx context.Context, alert *Alert) error {
	if alert.Type == "" {
		return fmt.Errorf("alert type is required")
	}

	b.logger.Info("sending status alert",
		zap.String("type", string(alert.Type)),
		zap.String("title", alert.Title),
		zap.String("agent", alert.AgentID),
	)

	if err := b.gateway.Broadcast(ctx, alert); err != nil {
		return err
	}

	targets := alert.Platforms
	if len(targets) == 0 {
		targets = b.gateway.Platforms()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, AlertRecord{
		Alert:   alert,
		SentAt:  time.Now(),
		Targets: targets,
	})
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
	return nil
}

// History returns recent alert records, oldest first.
func (b *Broadcaster) History(limit int) []AlertRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	out := make([]AlertRecord, limit)
	copy(out, b.history[start:])
	return out
}
