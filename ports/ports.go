// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/sennetconsortium/entity-api/domain/auth"
)

// ErrNotFound is returned by stores and collaborator clients when the
// referenced entity or identifier does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability. Triggers must derive timestamps from
// it so retried operations are reproducible in tests.
type Clock interface {
	Now() time.Time
}

// Cache caches rendered entity documents keyed by uuid.
type Cache interface {
	Get(key string) (map[string]any, bool)
	Set(key string, doc map[string]any)
	Delete(key string)
	Flush()
}

// -----------------------------------------------------------------------------
// Graph Store Port
// -----------------------------------------------------------------------------

// EntityStore persists entities and provenance relationships in the graph
// database. Every write runs in a single transaction; the database is the
// sole arbiter of consistency.
type EntityStore interface {
	// CreateEntity writes the entity node, its Activity node and the
	// ACTIVITY_OUTPUT edge in one transaction, returning the stored node.
	// Collections take no Activity; pass nil.
	CreateEntity(ctx context.Context, entityType string, props, activity map[string]any) (map[string]any, error)

	// UpdateEntity overwrites the given properties on an existing node.
	UpdateEntity(ctx context.Context, uuid string, props map[string]any) (map[string]any, error)

	GetEntityByUUID(ctx context.Context, uuid string) (map[string]any, error)
	GetEntitiesByType(ctx context.Context, entityType string) ([]map[string]any, error)

	// Provenance DAG traversals.
	GetAncestors(ctx context.Context, uuid string) ([]map[string]any, error)
	GetDescendants(ctx context.Context, uuid string) ([]map[string]any, error)
	GetParents(ctx context.Context, uuid string) ([]map[string]any, error)
	GetChildren(ctx context.Context, uuid string) ([]map[string]any, error)
	GetProvenance(ctx context.Context, uuid string, depth int) (ProvenanceGraph, error)

	// Revision chain. The previous pointer is stored on the node itself;
	// only the next pointer needs a graph lookup.
	GetNextRevisionUUID(ctx context.Context, uuid string) (string, error)
	GetPreviousRevisions(ctx context.Context, uuid string) ([]map[string]any, error)
	GetNextRevisions(ctx context.Context, uuid string) ([]map[string]any, error)
	GetLatestRevision(ctx context.Context, uuid string) (map[string]any, error)

	// Membership lookups used by on-read triggers.
	GetCollectionEntities(ctx context.Context, uuid string) ([]map[string]any, error)
	GetDatasetCollections(ctx context.Context, uuid string) ([]map[string]any, error)
	GetDatasetUpload(ctx context.Context, uuid string) (map[string]any, error)
	GetUploadDatasets(ctx context.Context, uuid string) ([]map[string]any, error)
	GetDirectAncestors(ctx context.Context, uuid string) ([]map[string]any, error)

	// Linkage rebuilds used by after-create/after-update triggers.
	LinkToDirectAncestors(ctx context.Context, uuid string, ancestorUUIDs []string) error
	LinkCollectionToEntities(ctx context.Context, collectionUUID string, entityUUIDs []string) error
	LinkDatasetsToUpload(ctx context.Context, uploadUUID string, datasetUUIDs []string) error
	LinkToPreviousRevision(ctx context.Context, uuid, previousUUID string) error

	// CountAttachedPublishedDatasets counts published datasets below the
	// entity in the provenance DAG; drives data_access_level derivation.
	CountAttachedPublishedDatasets(ctx context.Context, uuid string) (int, error)

	// Ping verifies connectivity for the status endpoint.
	Ping(ctx context.Context) error
}

// ProvenanceGraph is a DAG extract: the nodes reachable upward from an
// entity plus the edges between them.
type ProvenanceGraph struct {
	Nodes []map[string]any `json:"nodes"`
	Edges []ProvenanceEdge `json:"edges"`
}

// ProvenanceEdge is one relationship in a provenance extract.
type ProvenanceEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// -----------------------------------------------------------------------------
// Collaborator Service Ports
// -----------------------------------------------------------------------------

// Identifiers is one issued identifier tuple.
type Identifiers struct {
	UUID     string `json:"uuid"`
	SenNetID string `json:"sennet_id"`
	BaseID   string `json:"base_id"`
}

// IDService talks to the external identifier-issuing collaborator.
type IDService interface {
	// NewIDs registers identifiers for a new entity of the given type.
	NewIDs(ctx context.Context, entityType string, user *auth.User) (Identifiers, error)

	// Resolve maps any public identifier (uuid or consortium id) to the
	// full tuple. Returns ErrNotFound for unknown identifiers.
	Resolve(ctx context.Context, id string) (Identifiers, error)
}

// AuthProvider validates bearer tokens against the external identity
// collaborator and resolves group membership.
type AuthProvider interface {
	// UserFromToken returns the caller identity for a valid token.
	// An invalid or expired token yields an error; callers map it to 401.
	UserFromToken(ctx context.Context, token string) (*auth.User, error)
}
