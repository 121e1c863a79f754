package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Factory builds the controller for a device.
type Factory func(deviceID string) *Controller

// Registry holds one controller per device.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	active  map[string]*Controller
}

// NewRegistry creates a new registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		active:  make(map[string]*Controller),
	}
}

// Get returns the device's controller, creating it on first use.
func (r *Registry) Get(deviceID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.active[deviceID]; ok {
		return c
	}
	c := r.factory(deviceID)
	r.active[deviceID] = c
	slog.Info("Chat session registered", "device_id", deviceID)
	return c
}

// Lookup returns the device's controller or nil.
func (r *Registry) Lookup(deviceID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[deviceID]
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Remove closes and forgets the device's controller.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	c, ok := r.active[deviceID]
	delete(r.active, deviceID)
	r.mu.Unlock()

	if ok {
		c.Close()
		slog.Info("Chat session unregistered", "device_id", deviceID)
	}
}

// Reap closes controllers idle for longer than ttl and returns their device
// IDs. Controllers with an outstanding send, a prototype flow or a live
// subscriber are kept.
func (r *Registry) Reap(ttl time.Duration, now time.Time) []string {
	r.mu.Lock()
	var expired []string
	var closing []*Controller
	for id, c := range r.active {
		if c.Busy() || now.Sub(c.LastActive()) < ttl {
			continue
		}
		expired = append(expired, id)
		closing = append(closing, c)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, c := range closing {
		c.Close()
	}
	return expired
}

// CloseAll closes every controller and waits for their background work.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.active
	r.active = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

// StartIdleWorker runs a background goroutine that periodically evicts idle
// chat sessions.
func StartIdleWorker(ctx context.Context, r *Registry, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle session worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				if expired := r.Reap(ttl, now); len(expired) > 0 {
					slog.Info("Idle session worker evicted sessions", "count", len(expired))
				}
			case <-ctx.Done():
				slog.Info("Idle session worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
