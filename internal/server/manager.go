// Package server assembles the central system from its configuration and
// runs its long-lived components until shutdown.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"csms/internal/log"
)

// Runnable is a component that runs until ctx is done or it fails.
type Runnable interface {
	Start(ctx context.Context) error
}

// RunFunc adapts a function to Runnable.
type RunFunc func(ctx context.Context) error

func (f RunFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager runs a set of components in parallel. The first failure cancels
// the others.
type Manager struct {
	log        log.Logger
	components []named
}

type named struct {
	name string
	run  Runnable
}

func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{log: logger}
}

// Add registers r under name. It must be called before Start.
func (m *Manager) Add(name string, r Runnable) {
	m.components = append(m.components, named{name: name, run: r})
}

// Start launches every component and waits for all of them to return.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range m.components {
		g.Go(func() error {
			m.log.Debug("component starting", "component", c.name)
			err := c.run.Start(ctx)
			if err != nil {
				m.log.Error(err, "component failed", "component", c.name)
			} else {
				m.log.Debug("component stopped", "component", c.name)
			}
			return err
		})
	}
	m.log.Info("all components starting", "count", len(m.components))
	return g.Wait()
}
