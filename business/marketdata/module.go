// Package marketdata wires the Kraken streaming client into the monolith's
// DI container as a single bounded context.
package marketdata

import (
	"context"
	"fmt"

	"github.com/fd1az/krakenfeed/business/marketdata/app"
	mdi "github.com/fd1az/krakenfeed/business/marketdata/di"
	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/config"
	"github.com/fd1az/krakenfeed/internal/di"
	"github.com/fd1az/krakenfeed/internal/logger"
)

// Module implements monolith.Module for the marketdata bounded context.
type Module struct{}

// New returns a marketdata Module.
func New() *Module {
	return &Module{}
}

// RegisterServices registers the marketdata Client as a lazily-built
// singleton. The factory resolves "config" and "logger" from the registry
// so registration order against other modules doesn't matter.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mdi.Client, func(sr di.ServiceRegistry) *app.Client {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		client, err := app.NewClient(cfg, log)
		if err != nil {
			// RegisterToken's factory has no error return; a malformed
			// config should have failed config.Validate before we got
			// here, so this only fires on a wiring bug.
			panic(fmt.Sprintf("marketdata: building client: %v", err))
		}
		return client
	})
	return nil
}

// Monolith is the subset of monolith.Monolith this module needs at startup.
type Monolith interface {
	Config() *config.Config
	Services() di.ServiceRegistry
}

// Startup dials the Kraken websocket and subscribes to a ticker channel for
// every pair in Kraken.Pairs, giving the process useful output with zero
// caller-side wiring. Callers that want a different default channel set
// can still add and remove subscriptions once Startup returns, since the
// client and its Subscribe/Unsubscribe methods remain reachable through the
// registry for the lifetime of the process.
func (m *Module) Startup(ctx context.Context, mono Monolith) error {
	client := mdi.GetClient(mono.Services())

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("marketdata: connect: %w", err)
	}

	cfg := mono.Config()
	symbols := make([]domain.Symbol, len(cfg.Kraken.Pairs))
	for i, p := range cfg.Kraken.Pairs {
		symbols[i] = domain.Normalize(p)
	}

	for _, sym := range symbols {
		ch := domain.Channel{Kind: domain.KindTicker, Symbols: []domain.Symbol{sym}}
		if err := client.Subscribe(ctx, ch); err != nil {
			return fmt.Errorf("marketdata: subscribing ticker for %s: %w", sym, err)
		}
	}

	return nil
}
