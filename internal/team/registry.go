// Package team manages the participant roster and the concurrent fan-out of
// reasoning calls across producers, validators, and auditors.
package team

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// Registry is a thread-safe roster of participants keyed by kind and the
// design domain (or pillar) they hold.
type Registry struct {
	mu         sync.RWMutex
	producers  map[domain.DomainTag]domain.ParticipantRef
	validators map[domain.DomainTag]domain.ParticipantRef
	auditors   map[domain.DomainTag]domain.ParticipantRef
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		producers:  make(map[domain.DomainTag]domain.ParticipantRef),
		validators: make(map[domain.DomainTag]domain.ParticipantRef),
		auditors:   make(map[domain.DomainTag]domain.ParticipantRef),
	}
}

// Register adds a participant to the roster.
// Returns ErrDuplicateRegistered if the kind/domain slot is already held.
func (r *Registry) Register(ref domain.ParticipantRef) error {
	if ref.Name == "" {
		return domain.WrapEngineError(domain.ErrParticipantUnknown.Code, "participant name is empty", nil)
	}
	if ref.Domain == "" {
		return domain.WrapEngineError(domain.ErrDomainUnknown.Code, "participant has no domain", nil)
	}
	slot, err := r.slot(ref.Kind)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, exists := slot[ref.Domain]; exists {
		return domain.WrapEngineError(
			domain.ErrDuplicateRegistered.Code,
			fmt.Sprintf("%s slot for %q already held by %s", ref.Kind, ref.Domain, held.Name),
			nil,
		)
	}
	slot[ref.Domain] = ref
	return nil
}

// Producer returns the producer holding the given design domain, or
// ErrParticipantUnknown if the slot is empty.
func (r *Registry) Producer(tag domain.DomainTag) (domain.ParticipantRef, error) {
	return r.lookup(r.producers, domain.KindProducer, tag)
}

// Validator returns the validator holding the given design domain, or
// ErrParticipantUnknown if the slot is empty.
func (r *Registry) Validator(tag domain.DomainTag) (domain.ParticipantRef, error) {
	return r.lookup(r.validators, domain.KindValidator, tag)
}

// Auditors returns the registered auditors in canonical pillar order.
func (r *Registry) Auditors() []domain.ParticipantRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]domain.ParticipantRef, 0, len(r.auditors))
	for _, pillar := range domain.AllPillars() {
		if ref, ok := r.auditors[pillar]; ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// List returns the names of all registered participants in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.producers)+len(r.validators)+len(r.auditors))
	for _, slot := range []map[domain.DomainTag]domain.ParticipantRef{r.producers, r.validators, r.auditors} {
		for _, ref := range slot {
			names = append(names, ref.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(slot map[domain.DomainTag]domain.ParticipantRef, kind domain.ParticipantKind, tag domain.DomainTag) (domain.ParticipantRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := slot[tag]
	if !ok {
		return domain.ParticipantRef{}, domain.WrapEngineError(
			domain.ErrParticipantUnknown.Code,
			fmt.Sprintf("no %s registered for %q", kind, tag),
			nil,
		)
	}
	return ref, nil
}

func (r *Registry) slot(kind domain.ParticipantKind) (map[domain.DomainTag]domain.ParticipantRef, error) {
	switch kind {
	case domain.KindProducer:
		return r.producers, nil
	case domain.KindValidator:
		return r.validators, nil
	case domain.KindAuditor:
		return r.auditors, nil
	default:
		return nil, domain.WrapEngineError(
			domain.ErrParticipantUnknown.Code,
			fmt.Sprintf("unknown participant kind %q", kind),
			nil,
		)
	}
}

// DefaultRegistry builds the standard roster: one producer and one validator
// per design domain plus one auditor per review pillar.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, tag := range domain.AllDomains() {
		r.producers[tag] = domain.ParticipantRef{
			Name:   string(tag) + "-architect",
			Kind:   domain.KindProducer,
			Domain: tag,
		}
		r.validators[tag] = domain.ParticipantRef{
			Name:   string(tag) + "-validator",
			Kind:   domain.KindValidator,
			Domain: tag,
		}
	}
	for _, pillar := range domain.AllPillars() {
		r.auditors[pillar] = domain.ParticipantRef{
			Name:   strings.ReplaceAll(string(pillar), "_", "-") + "-auditor",
			Kind:   domain.KindAuditor,
			Domain: pillar,
		}
	}
	return r
}
