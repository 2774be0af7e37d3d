package realtime

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrAnonymousConnection is returned when registering a client without an identity.
	ErrAnonymousConnection = errors.New("realtime: connection has no identity")
	// ErrDuplicateConnection is returned when a connection id is already registered.
	ErrDuplicateConnection = errors.New("realtime: connection already registered")
	// ErrRegistryClosed is returned after the registry was torn down.
	ErrRegistryClosed = errors.New("realtime: registry closed")
)

// Registry maps live connections to identities and answers addressing queries.
// Lookups return snapshots so callers can write without holding the lock.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Client
	byUser map[string]map[string]*Client
	admins map[string]*Client
	closed bool
	log    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
		admins: make(map[string]*Client),
		log:    logger.With().Str("component", "connection_registry").Logger(),
	}
}

// Register adds an authenticated client.
func (r *Registry) Register(client *Client) error {
	if client == nil || client.Identity.IsZero() {
		return ErrAnonymousConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.byID[client.ID]; exists {
		return ErrDuplicateConnection
	}

	r.byID[client.ID] = client
	userID := client.Identity.UserID
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]*Client)
	}
	r.byUser[userID][client.ID] = client
	if client.Identity.IsAdmin() {
		r.admins[client.ID] = client
	}

	r.log.Debug().Str("connection_id", client.ID).Str("user_id", userID).Str("role", string(client.Identity.Role)).Msg("connection registered")
	return nil
}

// Unregister removes and closes a client. It reports whether the id was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	client, ok := r.byID[id]
	if ok {
		r.removeLocked(client)
	}
	r.mu.Unlock()

	if ok {
		client.Close()
		r.log.Debug().Str("connection_id", id).Str("user_id", client.Identity.UserID).Msg("connection unregistered")
	}
	return ok
}

func (r *Registry) removeLocked(client *Client) {
	delete(r.byID, client.ID)
	delete(r.admins, client.ID)
	userID := client.Identity.UserID
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionsFor returns every live connection of a user.
func (r *Registry) ConnectionsFor(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

// AdminConnections returns every live admin connection.
func (r *Registry) AdminConnections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.admins)
}

// AllConnections returns every live connection.
func (r *Registry) AllConnections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byID)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Close unregisters and closes every client and rejects later registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := snapshot(r.byID)
	for _, client := range clients {
		r.removeLocked(client)
	}
	r.closed = true
	r.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

func snapshot(clients map[string]*Client) []*Client {
	out := make([]*Client, 0, len(clients))
	for _, client := range clients {
		out = append(out, client)
	}
	return out
}
