// Package dataplane establishes this plane's identity with the control plane and turns
// identity changes into queue intake decisions.
package dataplane

import "sync"

// Config is the identity assigned to this plane. Values are replaced wholesale, never mutated.
type Config struct {
	DataplaneID        string
	DataplaneName      string
	DataplaneEnabled   bool
	DataplaneGroupID   string
	DataplaneGroupName string
}

// Broadcaster delivers the latest Config to every subscriber, including ones that subscribe
// after it was published. Deliveries are serialized, so a subscriber never sees an older
// value after a newer one. Subscribers must not publish or subscribe from their callback.
type Broadcaster struct {
	deliver sync.Mutex
	subs    []func(Config)

	mu     sync.RWMutex
	latest *Config
}

// NewBroadcaster creates an empty Broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Publish stores cfg as the latest value and hands it to every subscriber
func (b *Broadcaster) Publish(cfg Config) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	b.latest = &cfg
	b.mu.Unlock()

	for _, fn := range b.subs {
		fn(cfg)
	}
}

// Subscribe registers fn and immediately replays the latest value, if any
func (b *Broadcaster) Subscribe(fn func(Config)) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.subs = append(b.subs, fn)
	if latest, ok := b.Latest(); ok {
		fn(latest)
	}
}

// Latest returns the most recently published value
func (b *Broadcaster) Latest() (Config, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Config{}, false
	}
	return *b.latest, true
}
