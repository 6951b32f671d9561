package hosts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

// Registry is the authoritative in-memory store of hosts and groups.
// All mutation goes through its methods; callers only ever see copies.
type Registry struct {
	mu     sync.RWMutex
	hosts  map[string]*Host
	groups map[string]*Group

	// pubMu serializes snapshot broadcasts so the sticky last value can
	// never regress to an older snapshot.
	pubMu  sync.Mutex
	bus    *bus.EventBus
	logger bus.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithEventBus makes the registry broadcast a snapshot on every mutation.
func WithEventBus(b *bus.EventBus) Option {
	return func(r *Registry) {
		r.bus = b
	}
}

// WithLogger sets the logger for the registry.
func WithLogger(logger bus.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty host registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		hosts:  make(map[string]*Host),
		groups: make(map[string]*Group),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplaceAll swaps the entire host set. Groups keep their ids but lose
// members that no longer exist.
func (r *Registry) ReplaceAll(ctx context.Context, hosts []Host) {
	r.mu.Lock()
	r.hosts = make(map[string]*Host, len(hosts))
	for _, h := range hosts {
		hc := h
		r.hosts[h.ID] = &hc
	}
	for _, g := range r.groups {
		g.HostIDs = r.pruneMembersLocked(g.HostIDs)
	}
	r.mu.Unlock()

	r.publish(ctx)
}

// Upsert adds or replaces a single host.
func (r *Registry) Upsert(ctx context.Context, h Host) {
	r.mu.Lock()
	hc := h
	r.hosts[h.ID] = &hc
	r.mu.Unlock()

	r.publish(ctx)
}

// UpsertMany adds or replaces several hosts in one mutation.
func (r *Registry) UpsertMany(ctx context.Context, hosts []Host) {
	r.mu.Lock()
	for _, h := range hosts {
		hc := h
		r.hosts[h.ID] = &hc
	}
	r.mu.Unlock()

	r.publish(ctx)
}

// Remove deletes a host by id. Removing an unknown id is an error so callers
// can surface typos in the UI.
func (r *Registry) Remove(ctx context.Context, hostID string) error {
	r.mu.Lock()
	if _, ok := r.hosts[hostID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("host %s not found", hostID)
	}
	delete(r.hosts, hostID)
	for _, g := range r.groups {
		g.HostIDs = removeID(g.HostIDs, hostID)
	}
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// SetEnabled toggles whether a host participates in deployments.
func (r *Registry) SetEnabled(ctx context.Context, hostID string, enabled bool) error {
	r.mu.Lock()
	h, ok := r.hosts[hostID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("host %s not found", hostID)
	}
	h.Enabled = enabled
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// Get returns a copy of the host with the given id.
func (r *Registry) Get(hostID string) (Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hosts[hostID]
	if !ok {
		return Host{}, false
	}
	return copyHost(h), true
}

// UpsertGroup adds or replaces a group. Member ids are deduplicated and
// unknown members are dropped.
func (r *Registry) UpsertGroup(ctx context.Context, g Group) Group {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	r.mu.Lock()
	gc := g
	gc.HostIDs = r.pruneMembersLocked(dedupe(g.HostIDs))
	r.groups[gc.ID] = &gc
	out := copyGroup(&gc)
	r.mu.Unlock()

	r.publish(ctx)
	return out
}

// RemoveGroup deletes a group. Member hosts are untouched.
func (r *Registry) RemoveGroup(ctx context.Context, groupID string) error {
	r.mu.Lock()
	if _, ok := r.groups[groupID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("group %s not found", groupID)
	}
	delete(r.groups, groupID)
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// AssignToGroup adds a host to a group. Membership is a set: assigning an
// existing member is a no-op.
func (r *Registry) AssignToGroup(ctx context.Context, groupID, hostID string) error {
	r.mu.Lock()
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("group %s not found", groupID)
	}
	if _, ok := r.hosts[hostID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("host %s not found", hostID)
	}
	for _, id := range g.HostIDs {
		if id == hostID {
			r.mu.Unlock()
			return nil
		}
	}
	g.HostIDs = append(g.HostIDs, hostID)
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// UnassignFromGroup removes a host from a group.
func (r *Registry) UnassignFromGroup(ctx context.Context, groupID, hostID string) error {
	r.mu.Lock()
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("group %s not found", groupID)
	}
	g.HostIDs = removeID(g.HostIDs, hostID)
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// Group returns a copy of the group with the given id.
func (r *Registry) Group(groupID string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, false
	}
	return copyGroup(g), true
}

// Filter returns copies of all hosts matching the predicate.
func (r *Registry) Filter(pred func(Host) bool) []Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Host
	for _, h := range r.hosts {
		if pred(copyHost(h)) {
			out = append(out, copyHost(h))
		}
	}
	sortHosts(out)
	return out
}

// FindByTag returns all hosts carrying the given tag.
func (r *Registry) FindByTag(tag string) []Host {
	return r.Filter(func(h Host) bool { return h.HasTag(tag) })
}

// Snapshot returns a copy of the full registry contents, sorted by id for
// stable presentation.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Count returns the number of registered hosts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := Snapshot{
		Hosts:  make([]Host, 0, len(r.hosts)),
		Groups: make([]Group, 0, len(r.groups)),
	}
	for _, h := range r.hosts {
		snap.Hosts = append(snap.Hosts, copyHost(h))
	}
	for _, g := range r.groups {
		snap.Groups = append(snap.Groups, copyGroup(g))
	}
	sortHosts(snap.Hosts)
	sort.Slice(snap.Groups, func(i, j int) bool { return snap.Groups[i].ID < snap.Groups[j].ID })
	return snap
}

// publish broadcasts the combined snapshot as a sticky event so late
// subscribers immediately see the current fleet.
func (r *Registry) publish(ctx context.Context) {
	if r.bus == nil {
		return
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.RLock()
	snap := r.snapshotLocked()
	r.mu.RUnlock()

	r.bus.PublishSticky(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.EventHostsChanged,
		Source:    "hosts.registry",
		Timestamp: time.Now(),
		Data: map[string]any{
			"snapshot":  snap,
			"hostCount": len(snap.Hosts),
		},
	})
}

func (r *Registry) pruneMembersLocked(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if _, ok := r.hosts[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func copyHost(h *Host) Host {
	hc := *h
	hc.Tags = append([]string(nil), h.Tags...)
	hc.Groups = append([]string(nil), h.Groups...)
	return hc
}

func copyGroup(g *Group) Group {
	gc := *g
	gc.HostIDs = append([]string(nil), g.HostIDs...)
	gc.Tags = append([]string(nil), g.Tags...)
	return gc
}

func sortHosts(hs []Host) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].ID < hs[j].ID })
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
