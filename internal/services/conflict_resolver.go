package services

import (
	"fmt"

	"github.com/prudhvinik1/possync/internal/models"
)

type ConflictPolicy string

const (
	PolicyLastWriteWins  ConflictPolicy = "last_write_wins"
	PolicySourcePriority ConflictPolicy = "source_priority"
)

// Decision says which side of a conflict should persist.
type Decision int

const (
	KeepIncoming Decision = iota
	KeepExisting
)

func (d Decision) String() string {
	if d == KeepExisting {
		return "existing"
	}
	return "incoming"
}

type ResolverConfig struct {
	Policy ConflictPolicy
	// Priorities ranks sources; higher wins. A document without a source
	// ranks as the document store.
	Priorities map[models.Source]int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Policy: PolicySourcePriority,
		Priorities: map[models.Source]int{
			models.SourceTableService:  2,
			models.SourceDocumentStore: 1,
		},
	}
}

type ConflictResolver struct {
	cfg ResolverConfig
}

func NewConflictResolver(cfg ResolverConfig) (*ConflictResolver, error) {
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicySourcePriority
	case PolicyLastWriteWins, PolicySourcePriority:
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", cfg.Policy)
	}
	if cfg.Priorities == nil {
		cfg.Priorities = DefaultResolverConfig().Priorities
	}
	return &ConflictResolver{cfg: cfg}, nil
}

func (r *ConflictResolver) Policy() ConflictPolicy {
	return r.cfg.Policy
}

// Resolve returns the document that should persist. It never merges.
func (r *ConflictResolver) Resolve(existing, incoming *models.SyncDocument) *models.SyncDocument {
	if r.Decide(existing, incoming) == KeepExisting {
		return existing
	}
	return incoming
}

func (r *ConflictResolver) Decide(existing, incoming *models.SyncDocument) Decision {
	if existing == nil {
		return KeepIncoming
	}

	if r.cfg.Policy == PolicyLastWriteWins {
		return newerWins(existing, incoming)
	}

	exPr := r.priority(existing.Source)
	inPr := r.priority(incoming.Source)
	switch {
	case inPr > exPr:
		return KeepIncoming
	case inPr < exPr:
		return KeepExisting
	}
	return newerWins(existing, incoming)
}

func (r *ConflictResolver) priority(source models.Source) int {
	if source == "" {
		source = models.SourceDocumentStore
	}
	if p, ok := r.cfg.Priorities[source]; ok {
		return p
	}
	return 1
}

// newerWins keeps incoming when its updatedAt is at or after existing's.
// A timestamp that does not parse sorts before every valid one, so a
// malformed pair still lets incoming win the tie.
func newerWins(existing, incoming *models.SyncDocument) Decision {
	exTs, exOK := existing.Timestamp()
	inTs, inOK := incoming.Timestamp()

	switch {
	case !inOK && exOK:
		return KeepExisting
	case !exOK:
		return KeepIncoming
	case inTs.Before(exTs):
		return KeepExisting
	}
	return KeepIncoming
}
