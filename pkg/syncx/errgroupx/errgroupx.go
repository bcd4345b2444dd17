// Package errgroupx wraps golang.org/x/sync/errgroup with a group-scoped
// context so the context cannot leak past the lifetime of the group.
package errgroupx

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Group is a thin wrapper around errgroup.Group.
type Group struct {
	inner   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	recover bool
}

// WithContext creates a Group as a child of the given context.
func WithContext(ctx context.Context) *Group {
	intermediate, cancel := context.WithCancel(ctx)
	g, groupCtx := errgroup.WithContext(intermediate)

	return &Group{inner: g, ctx: groupCtx, cancel: cancel}
}

// WithRecover sets up the group to recover panics from spawned goroutines.
// Recovered panics surface as errors when awaiting the group.
func (g *Group) WithRecover() *Group {
	g.recover = true
	return g
}

// WithLimit calls SetLimit on the underlying errgroup.Group.
func (g *Group) WithLimit(n int) *Group {
	g.inner.SetLimit(n)
	return g
}

// Go launches the given function in a goroutine as a member of the group. If
// the function returns an error, the group-scoped context is canceled.
func (g *Group) Go(f func(ctx context.Context) error) {
	g.inner.Go(func() (err error) {
		defer func() {
			if !g.recover {
				return
			}
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%s\n%s", rec, debug.Stack())
			}
		}()
		return f(g.ctx)
	})
}

// Wait blocks until all members of the group have completed, then cancels the
// group-scoped context and returns the first error seen.
func (g *Group) Wait() error {
	defer g.cancel()
	return g.inner.Wait()
}
