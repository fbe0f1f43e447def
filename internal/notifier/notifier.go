// Package notifier publishes rendered alert notifications to destinations.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Notifier is the interface for all destination types.
type Notifier interface {
	// Type returns the destination type (e.g., "email", "slack").
	Type() string
	// Send publishes msg and returns the message id assigned to it.
	Send(ctx context.Context, msg Message) (string, error)
	// Close releases any resources.
	Close() error
}

var (
	// ErrRateLimited is returned when a notification is dropped due to rate limiting.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrUnknownDestination is returned for destination ids that are not registered.
	ErrUnknownDestination = errors.New("unknown destination")
)

// Dispatcher routes messages to destinations by id.
type Dispatcher struct {
	mu           sync.RWMutex
	destinations map[string]Notifier
	rateLimiter  *RateLimiter
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		destinations: make(map[string]Notifier),
		rateLimiter:  NewRateLimiter(config),
	}
}

// Register adds a destination, replacing any notifier registered under id.
func (d *Dispatcher) Register(id string, n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destinations[id] = n
}

// Unregister removes a destination.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.destinations, id)
}

// Get returns the notifier of a destination.
func (d *Dispatcher) Get(id string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.destinations[id]
	return n, ok
}

// Destinations returns the registered destination ids, sorted.
func (d *Dispatcher) Destinations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.destinations))
	for id := range d.destinations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send publishes msg to the destination and returns its message id.
// Returns ErrRateLimited if the notification is dropped due to rate limiting.
func (d *Dispatcher) Send(ctx context.Context, destinationID string, msg Message) (string, error) {
	n, ok := d.Get(destinationID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDestination, destinationID)
	}

	release, ok := d.rateLimiter.Allow()
	if !ok {
		return "", ErrRateLimited
	}

	id, err := n.Send(ctx, msg)
	if err != nil {
		// Failed sends do not use up the budget.
		release()
		return "", fmt.Errorf("%s %s: %w", n.Type(), destinationID, err)
	}
	return id, nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for id, n := range d.destinations {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	d.destinations = make(map[string]Notifier)
	return errors.Join(errs...)
}
