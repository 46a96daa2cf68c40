package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"switchboard/internal/domain"
)

// ApprovalStore persists which descriptor hash a human last approved
// for each capability name.
type ApprovalStore interface {
	ApprovedHash(ctx context.Context, name string) (string, error)
	RecordApproval(ctx context.Context, name string, hash string) error
}

// Registry owns capability descriptors and their activation state.
// Load swaps in a new immutable snapshot atomically, so an in-flight
// selection never observes a half-updated capability set.
type Registry struct {
	dir       string
	approvals ApprovalStore
	logger    *slog.Logger

	builtins []domain.Descriptor

	mu       sync.RWMutex
	snapshot []domain.Descriptor
}

func NewRegistry(dir string, approvals ApprovalStore, logger *slog.Logger) *Registry {
	return &Registry{
		dir:       dir,
		approvals: approvals,
		logger:    logger,
	}
}

// RegisterBuiltins adds code-registered descriptors. Builtins score
// ahead of user capabilities in declaration order and are auto-approved
// on first load. Must be called before Load.
func (r *Registry) RegisterBuiltins(descriptors ...domain.Descriptor) {
	for _, d := range descriptors {
		d.Source = domain.SourceBuiltin
		d.IntegrityHash = HashDescriptor(d)
		r.builtins = append(r.builtins, d)
	}
}

// Load re-scans the capability source, recomputes integrity hashes, and
// compares each against the last approved hash. A capability whose hash
// changed since approval is forced inactive until a human re-approves
// it. A load with zero valid descriptors is not an error.
func (r *Registry) Load(ctx context.Context) error {
	loaded, err := LoadFromDirectory(r.dir, r.logger)
	if err != nil {
		return fmt.Errorf("load capabilities: %w", err)
	}

	previous := r.activeSet()

	next := make([]domain.Descriptor, 0, len(r.builtins)+len(loaded))
	seen := make(map[string]bool, len(r.builtins)+len(loaded))
	for _, d := range append(append([]domain.Descriptor{}, r.builtins...), loaded...) {
		if seen[d.Name] {
			r.logger.Warn("duplicate capability name, keeping first", "name", d.Name)
			continue
		}
		seen[d.Name] = true

		active, err := r.resolveActivation(ctx, d, previous[d.Name])
		if err != nil {
			return err
		}
		d.Active = active
		next = append(next, d)
	}

	r.mu.Lock()
	r.snapshot = next
	r.mu.Unlock()

	r.logger.Info("capability registry loaded", "total", len(next), "active", countActive(next))
	return nil
}

func (r *Registry) resolveActivation(ctx context.Context, d domain.Descriptor, wasActive bool) (bool, error) {
	approved, err := r.approvals.ApprovedHash(ctx, d.Name)
	if err != nil {
		return false, fmt.Errorf("approval lookup for %s: %w", d.Name, err)
	}

	switch {
	case approved == d.IntegrityHash:
		return true, nil
	case approved == "" && d.Source == domain.SourceBuiltin:
		// Builtins ship with the binary; record their hash on first sight.
		if err := r.approvals.RecordApproval(ctx, d.Name, d.IntegrityHash); err != nil {
			return false, fmt.Errorf("record builtin approval for %s: %w", d.Name, err)
		}
		return true, nil
	case approved == "":
		r.logger.Info("new capability pending approval", "name", d.Name, "source", d.Source)
		return false, nil
	default:
		// Security-relevant: an approved descriptor changed underneath us.
		r.logger.Warn("capability integrity hash changed, deactivated pending re-approval",
			"name", d.Name,
			"was_active", wasActive,
			"approved_hash", approved[:12],
			"current_hash", d.IntegrityHash[:12],
		)
		return false, nil
	}
}

// Approve records the capability's current hash as reviewed and
// activates it. Returns an error if the capability is unknown.
func (r *Registry) Approve(ctx context.Context, name string) error {
	r.mu.RLock()
	idx := -1
	for i, d := range r.snapshot {
		if d.Name == name {
			idx = i
			break
		}
	}
	r.mu.RUnlock()

	if idx < 0 {
		return fmt.Errorf("capability %q not found", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.snapshot[idx]
	if err := r.approvals.RecordApproval(ctx, d.Name, d.IntegrityHash); err != nil {
		return fmt.Errorf("record approval: %w", err)
	}

	next := make([]domain.Descriptor, len(r.snapshot))
	copy(next, r.snapshot)
	next[idx].Active = true
	r.snapshot = next

	r.logger.Info("capability approved", "name", name, "hash", d.IntegrityHash[:12])
	return nil
}

// Get returns the descriptor with the given name, or false.
func (r *Registry) Get(name string) (domain.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.snapshot {
		if d.Name == name {
			return d, true
		}
	}
	return domain.Descriptor{}, false
}

// All returns every descriptor with its current state, in declaration order.
func (r *Registry) All() []domain.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Descriptor, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

// Active returns the active descriptors in declaration order.
func (r *Registry) Active() []domain.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Descriptor
	for _, d := range r.snapshot {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) activeSet() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool, len(r.snapshot))
	for _, d := range r.snapshot {
		set[d.Name] = d.Active
	}
	return set
}

func countActive(descriptors []domain.Descriptor) int {
	n := 0
	for _, d := range descriptors {
		if d.Active {
			n++
		}
	}
	return n
}
