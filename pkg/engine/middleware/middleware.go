// Package middleware wires cross-cutting turn behavior: prompt assembly,
// handoff injection, and activity capture. Middleware can modify per-turn
// state before the model runs and observe every event.
package middleware

import (
	"context"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Middleware Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Middleware hooks into the turn lifecycle.
type Middleware interface {
	// Name returns the middleware identifier.
	Name() string

	// BeforeTurn runs before the model is called. It may modify the
	// turn state (system prompt, messages).
	BeforeTurn(ctx context.Context, state *api.State) error

	// OnEvent observes each event emitted during the turn.
	OnEvent(ctx context.Context, state *api.State, e api.Event) error

	// AfterTurn runs after turn completion.
	AfterTurn(ctx context.Context, state *api.State, summary api.TurnSummary) error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Chain
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Chain runs multiple middleware in order.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends middleware to the chain.
func (c *Chain) Add(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// BeforeTurn runs all middleware BeforeTurn in order.
func (c *Chain) BeforeTurn(ctx context.Context, state *api.State) error {
	for _, m := range c.middlewares {
		if err := m.BeforeTurn(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// OnEvent runs all middleware OnEvent in order.
func (c *Chain) OnEvent(ctx context.Context, state *api.State, e api.Event) error {
	for _, m := range c.middlewares {
		if err := m.OnEvent(ctx, state, e); err != nil {
			return err
		}
	}
	return nil
}

// AfterTurn runs all middleware AfterTurn in reverse order.
func (c *Chain) AfterTurn(ctx context.Context, state *api.State, summary api.TurnSummary) error {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		if err := c.middlewares[i].AfterTurn(ctx, state, summary); err != nil {
			return err
		}
	}
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Base Middleware
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// BaseMiddleware provides no-op implementations of all methods.
type BaseMiddleware struct {
	name string
}

func NewBaseMiddleware(name string) BaseMiddleware {
	return BaseMiddleware{name: name}
}

func (m BaseMiddleware) Name() string { return m.name }

func (m BaseMiddleware) BeforeTurn(ctx context.Context, state *api.State) error {
	return nil
}

func (m BaseMiddleware) OnEvent(ctx context.Context, state *api.State, e api.Event) error {
	return nil
}

func (m BaseMiddleware) AfterTurn(ctx context.Context, state *api.State, summary api.TurnSummary) error {
	return nil
}
