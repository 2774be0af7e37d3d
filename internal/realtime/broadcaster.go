package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/observability"
)

// Scope selects a group of connections.
type Scope string

// Addressing scopes.
const (
	ScopeAll    Scope = "all"
	ScopeUser   Scope = "user"
	ScopeAdmins Scope = "admins"
)

// Target addresses connections in the registry. ExcludeConnection skips one connection,
// typically the sender's.
type Target struct {
	Scope             Scope  `json:"scope"`
	UserID            string `json:"user_id,omitempty"`
	ExcludeConnection string `json:"exclude_connection,omitempty"`
}

// ToAll addresses every live connection.
func ToAll() Target { return Target{Scope: ScopeAll} }

// ToUser addresses every connection of one user.
func ToUser(userID string) Target { return Target{Scope: ScopeUser, UserID: userID} }

// ToAdmins addresses every admin connection.
func ToAdmins() Target { return Target{Scope: ScopeAdmins} }

// Excluding returns a copy of t that skips connectionID.
func (t Target) Excluding(connectionID string) Target {
	t.ExcludeConnection = connectionID
	return t
}

// remoteWindow bounds how long a remote delivery ID is remembered. A delivery relayed
// by several buses is applied once within this window.
const remoteWindow = time.Minute

// Broadcaster delivers push frames to local connections and mirrors them on the buses
// so connections held by other nodes receive them too.
type Broadcaster struct {
	registry *Registry
	buses    []Bus
	nodeID   string
	logger   zerolog.Logger

	mu         sync.Mutex
	applied    map[string]time.Time
	lastPruned time.Time
}

// NewBroadcaster creates a broadcaster over registry. Buses are optional.
func NewBroadcaster(registry *Registry, logger zerolog.Logger, buses ...Bus) *Broadcaster {
	active := make([]Bus, 0, len(buses))
	for _, bus := range buses {
		if bus != nil {
			active = append(active, bus)
		}
	}
	return &Broadcaster{
		registry: registry,
		buses:    active,
		nodeID:   uuid.NewString(),
		logger:   logger.With().Str("component", "broadcaster").Logger(),
		applied:  make(map[string]time.Time),
	}
}

// NodeID identifies this process on the buses.
func (b *Broadcaster) NodeID() string {
	return b.nodeID
}

// Start subscribes to every bus. Deliveries published by this node are ignored.
func (b *Broadcaster) Start(ctx context.Context) {
	for _, bus := range b.buses {
		if err := bus.Subscribe(ctx, b.handleRemote); err != nil {
			b.logger.Error().Err(err).Str("bus", bus.Name()).Msg("failed to subscribe to delivery bus")
			continue
		}
		b.logger.Info().Str("bus", bus.Name()).Msg("subscribed to delivery bus")
	}
}

// Deliver pushes frame to the union of targets and returns the number of local connections
// that accepted it. Each connection receives the frame at most once.
func (b *Broadcaster) Deliver(ctx context.Context, frame Outbound, targets ...Target) int {
	raw, err := Encode(frame)
	if err != nil {
		b.logger.Error().Err(err).Str("event", frame.Type).Msg("failed to encode frame")
		return 0
	}

	delivered := b.deliverLocal(frame.Type, raw, targets)

	if len(b.buses) > 0 {
		delivery := Delivery{
			ID:      uuid.NewString(),
			Source:  b.nodeID,
			Event:   frame.Type,
			Targets: targets,
			Frame:   json.RawMessage(raw),
			SentAt:  time.Now().UTC(),
		}
		for _, bus := range b.buses {
			if err := bus.Publish(ctx, delivery); err != nil {
				b.logger.Warn().Err(err).Str("bus", bus.Name()).Str("event", frame.Type).Msg("failed to publish delivery")
			}
		}
	}

	return delivered
}

func (b *Broadcaster) handleRemote(delivery Delivery) {
	if delivery.Source == b.nodeID {
		return
	}
	if !b.firstSighting(delivery.ID, time.Now()) {
		return
	}
	b.deliverLocal(delivery.Event, delivery.Frame, delivery.Targets)
}

// firstSighting reports whether id has not been applied within remoteWindow and records it.
// Deliveries without an ID are always applied.
func (b *Broadcaster) firstSighting(id string, now time.Time) bool {
	if id == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastPruned) >= remoteWindow {
		for key, seenAt := range b.applied {
			if now.Sub(seenAt) >= remoteWindow {
				delete(b.applied, key)
			}
		}
		b.lastPruned = now
	}
	if _, ok := b.applied[id]; ok {
		return false
	}
	b.applied[id] = now
	return true
}

func (b *Broadcaster) deliverLocal(event string, raw []byte, targets []Target) int {
	seen := make(map[string]struct{})
	delivered := 0

	for _, target := range targets {
		for _, client := range b.resolve(target) {
			if client.ID == target.ExcludeConnection {
				continue
			}
			if _, ok := seen[client.ID]; ok {
				continue
			}
			seen[client.ID] = struct{}{}

			if client.Enqueue(raw) {
				delivered++
				observability.RealtimeDeliveries().WithLabelValues(event, "delivered").Inc()
				continue
			}
			observability.RealtimeDeliveries().WithLabelValues(event, "dropped").Inc()
			b.logger.Warn().Str("event", event).Str("connection_id", client.ID).Str("user_id", client.Identity.UserID).Msg("dropping frame for slow or closed connection")
		}
	}

	return delivered
}

func (b *Broadcaster) resolve(target Target) []*Client {
	switch target.Scope {
	case ScopeAll:
		return b.registry.AllConnections()
	case ScopeUser:
		if target.UserID == "" {
			return nil
		}
		return b.registry.ConnectionsFor(target.UserID)
	case ScopeAdmins:
		return b.registry.AdminConnections()
	default:
		return nil
	}
}
