// Package gateway fans status alerts out to chat platforms.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages all platform notifiers.
type Gateway struct {
	notifiers map[string]Notifier
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		notifiers: make(map[string]Notifier),
		logger:    logger,
	}
}

// Register adds a notifier, replacing any previous one for the same platform.
func (g *Gateway) Register(n Notifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	platform := n.Platform()
	g.notifiers[platform] = n
	g.logger.Info("registered notifier", zap.String("platform", platform))
}

// ConnectAll starts all registered notifiers.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, n := range g.notifiers {
		if err := n.Connect(ctx); err != nil {
			g.logger.Error("notifier connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("notifier connected", zap.String("platform", platform))
	}
	return nil
}

// Broadcast sends an alert to all matching notifiers.
func (g *Gateway) Broadcast(ctx context.Context, alert *Alert) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.notifiers
	if len(alert.Platforms) > 0 {
		targets = make(map[string]Notifier)
		for _, p := range alert.Platforms {
			if n, ok := g.notifiers[p]; ok {
				targets[p] = n
			}
		}
	}

	var errs []error
	for platform, n := range targets {
		if err := n.Notify(ctx, alert); err != nil {
			g.logger.Error("alert failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("alert failed on %d platform(s)", len(errs))
	}
	return nil
}

// Close shuts down all notifiers.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, n := range g.notifiers {
		if err := n.Close(); err != nil {
			g.logger.Error("notifier close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Platforms returns the registered platform names, sorted.
func (g *Gateway) Platforms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.notifiers))
	for name := range g.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
