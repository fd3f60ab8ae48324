// Package state keeps the local mirror of remote world state: an entity
// snapshot cache with a display-name registry, and the chat deduplicator that
// guards against replayed message batches.
package state

import (
	"sync"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/protocol"
	"worldpilot.ai/internal/world"
)

// EntitySnapshot is the cached view of one remote entity.
type EntitySnapshot struct {
	ID       string
	Kind     string
	Name     string
	Position *world.Vec3
	Rotation *world.Quat
}

// LiveWorld answers entity queries against the authoritative remote state.
// The cache falls back to it when an id is not cached locally.
type LiveWorld interface {
	LookupPosition(id string) (world.Vec3, bool)
	LookupName(id string) (string, bool)
}

// Cache mirrors remote entities. It is eventually consistent with the
// server: duplicate adds and removes are safe no-ops beyond the first.
type Cache struct {
	mu       sync.RWMutex
	entities map[string]*EntitySnapshot
	names    map[string]string
	live     LiveWorld
	log      *logrus.Entry
}

// NewCache builds an empty cache. live may be nil when no authoritative
// query path exists; lookups then miss instead of falling through.
func NewCache(live LiveWorld, log *logrus.Entry) *Cache {
	return &Cache{
		entities: make(map[string]*EntitySnapshot),
		names:    make(map[string]string),
		live:     live,
		log:      log,
	}
}

// OnEntityAdded inserts or overwrites the snapshot. Player entities also
// register their display name.
func (c *Cache) OnEntityAdded(e protocol.Entity) {
	snap := snapshotFrom(e)
	c.mu.Lock()
	c.entities[e.ID] = snap
	if e.Kind == protocol.EntityKindPlayer && e.Name != "" {
		c.names[e.ID] = e.Name
	}
	c.mu.Unlock()
}

// OnEntityModified updates a snapshot. The full entity, when the server sent
// one, wins over the patch; merging the patch onto the cached snapshot is the
// degraded fallback.
func (c *Cache) OnEntityModified(id string, patch protocol.EntityPatch, full *protocol.Entity) {
	if full != nil {
		c.OnEntityAdded(*full)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.entities[id]
	if snap == nil {
		// Patch for an unknown entity: keep what we were given rather than
		// drop it; the next full update reconciles.
		snap = &EntitySnapshot{ID: id}
		c.entities[id] = snap
	}
	if patch.Kind != nil {
		snap.Kind = *patch.Kind
	}
	if patch.Name != nil {
		snap.Name = *patch.Name
		if snap.Kind == protocol.EntityKindPlayer {
			c.names[id] = *patch.Name
		}
	}
	if patch.Position != nil {
		snap.Position = &world.Vec3{X: patch.Position[0], Y: patch.Position[1], Z: patch.Position[2]}
	}
	if patch.Rotation != nil {
		snap.Rotation = &world.Quat{X: patch.Rotation[0], Y: patch.Rotation[1], Z: patch.Rotation[2], W: patch.Rotation[3]}
	}
}

// OnEntityRemoved erases the snapshot and the name-registry entry together.
func (c *Cache) OnEntityRemoved(id string) {
	c.mu.Lock()
	delete(c.entities, id)
	delete(c.names, id)
	c.mu.Unlock()
}

// SetName records a display name independently of entity updates; name
// changes can arrive out of band.
func (c *Cache) SetName(id, name string) {
	c.mu.Lock()
	c.names[id] = name
	if snap := c.entities[id]; snap != nil {
		snap.Name = name
	}
	c.mu.Unlock()
}

// Position is a layered lookup: local cache first, then the live world.
func (c *Cache) Position(id string) (world.Vec3, bool) {
	c.mu.RLock()
	snap := c.entities[id]
	if snap != nil && snap.Position != nil {
		p := *snap.Position
		c.mu.RUnlock()
		return p, true
	}
	c.mu.RUnlock()
	if c.live != nil {
		return c.live.LookupPosition(id)
	}
	return world.Vec3{}, false
}

// Name resolves a display name: registry, then cache, then the live world.
func (c *Cache) Name(id string) (string, bool) {
	c.mu.RLock()
	if name, ok := c.names[id]; ok {
		c.mu.RUnlock()
		return name, true
	}
	if snap := c.entities[id]; snap != nil && snap.Name != "" {
		name := snap.Name
		c.mu.RUnlock()
		return name, true
	}
	c.mu.RUnlock()
	if c.live != nil {
		return c.live.LookupName(id)
	}
	return "", false
}

// Snapshot returns a copy of the cached entity.
func (c *Cache) Snapshot(id string) (EntitySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := c.entities[id]
	if snap == nil {
		return EntitySnapshot{}, false
	}
	out := *snap
	if snap.Position != nil {
		p := *snap.Position
		out.Position = &p
	}
	if snap.Rotation != nil {
		r := *snap.Rotation
		out.Rotation = &r
	}
	return out, true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Clear destroys all cached state. Nothing survives a reconnect.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entities = make(map[string]*EntitySnapshot)
	c.names = make(map[string]string)
	c.mu.Unlock()
}

func snapshotFrom(e protocol.Entity) *EntitySnapshot {
	snap := &EntitySnapshot{ID: e.ID, Kind: e.Kind, Name: e.Name}
	if e.Position != nil {
		snap.Position = &world.Vec3{X: e.Position[0], Y: e.Position[1], Z: e.Position[2]}
	}
	if e.Rotation != nil {
		snap.Rotation = &world.Quat{X: e.Rotation[0], Y: e.Rotation[1], Z: e.Rotation[2], W: e.Rotation[3]}
	}
	return snap
}
