// Package neo4j implements the entity store port against a Neo4j graph.
//
// Graph shape: every entity node carries the Entity label plus its type
// label. Provenance is recorded through Activity nodes, with edges
// (ancestor)-[:ACTIVITY_INPUT]->(activity)-[:ACTIVITY_OUTPUT]->(entity).
// Membership uses (entity)-[:IN_COLLECTION]->(collection) and
// (dataset)-[:IN_UPLOAD]->(upload); revision chains use
// (newer)-[:REVISION_OF]->(older).
package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/sennetconsortium/entity-api/domain/entity"
	"github.com/sennetconsortium/entity-api/ports"
)

// Observer receives per-query timings; the metrics collector implements it.
type Observer interface {
	ObserveQuery(op string, d time.Duration)
}

// Store is the Neo4j-backed implementation of ports.EntityStore.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger
	observer Observer
}

var _ ports.EntityStore = (*Store)(nil)

// Options configure optional collaborators of the store.
type Options struct {
	Database string
	Observer Observer
}

// New connects to Neo4j with basic auth. Connectivity is not verified here;
// use Ping.
func New(uri, username, password string, logger zerolog.Logger, opts Options) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	return &Store{
		driver:   driver,
		database: opts.Database,
		logger:   logger,
		observer: opts.Observer,
	}, nil
}

// Close releases the driver's connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies connectivity and authentication.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

var labelPattern = regexp.MustCompile(`^[A-Za-z]+$`)

// CreateEntity writes the entity node, its Activity node and the provenance
// edge in one transaction. Collections pass a nil activity and get a bare
// node.
func (s *Store) CreateEntity(ctx context.Context, entityType string, props, activity map[string]any) (map[string]any, error) {
	defer s.observe("create_entity", time.Now())
	if !labelPattern.MatchString(entityType) {
		return nil, fmt.Errorf("invalid entity type label %q", entityType)
	}
	encoded, err := encodeProps(props)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (map[string]any, error) {
		if activity == nil {
			return runSingleNode(ctx, tx,
				fmt.Sprintf(`CREATE (e:Entity:%s) SET e = $props RETURN e`, entityType),
				map[string]any{"props": encoded})
		}
		encodedActivity, err := encodeProps(activity)
		if err != nil {
			return nil, err
		}
		return runSingleNode(ctx, tx, fmt.Sprintf(`
			CREATE (e:Entity:%s) SET e = $props
			CREATE (a:Activity) SET a = $activity
			CREATE (a)-[:ACTIVITY_OUTPUT]->(e)
			RETURN e`, entityType),
			map[string]any{"props": encoded, "activity": encodedActivity})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateEntity overwrites the given properties on an existing node.
func (s *Store) UpdateEntity(ctx context.Context, uuid string, props map[string]any) (map[string]any, error) {
	defer s.observe("update_entity", time.Now())
	encoded, err := encodeProps(props)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	return neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (map[string]any, error) {
		return runSingleNode(ctx, tx,
			`MATCH (e:Entity {uuid: $uuid}) SET e += $props RETURN e`,
			map[string]any{"uuid": uuid, "props": encoded})
	})
}

func (s *Store) GetEntityByUUID(ctx context.Context, uuid string) (map[string]any, error) {
	defer s.observe("get_entity", time.Now())
	return s.readSingle(ctx,
		`MATCH (e:Entity {uuid: $uuid}) RETURN e`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetEntitiesByType(ctx context.Context, entityType string) ([]map[string]any, error) {
	defer s.observe("get_entities_by_type", time.Now())
	return s.readMany(ctx, `
		MATCH (e:Entity {entity_type: $entity_type})
		RETURN e ORDER BY e.created_timestamp DESC`,
		map[string]any{"entity_type": entityType})
}

func (s *Store) GetAncestors(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_ancestors", time.Now())
	return s.readMany(ctx, `
		MATCH (anc:Entity)-[:ACTIVITY_INPUT|ACTIVITY_OUTPUT*]->(e:Entity {uuid: $uuid})
		WHERE anc.uuid <> e.uuid
		RETURN DISTINCT anc AS e`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetDescendants(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_descendants", time.Now())
	return s.readMany(ctx, `
		MATCH (e:Entity {uuid: $uuid})-[:ACTIVITY_INPUT|ACTIVITY_OUTPUT*]->(desc:Entity)
		WHERE desc.uuid <> e.uuid
		RETURN DISTINCT desc AS e`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetParents(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_parents", time.Now())
	return s.readMany(ctx, directAncestorsQuery, map[string]any{"uuid": uuid})
}

func (s *Store) GetChildren(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_children", time.Now())
	return s.readMany(ctx, `
		MATCH (e:Entity {uuid: $uuid})-[:ACTIVITY_INPUT]->(:Activity)-[:ACTIVITY_OUTPUT]->(child:Entity)
		RETURN DISTINCT child AS e`,
		map[string]any{"uuid": uuid})
}

const directAncestorsQuery = `
	MATCH (parent:Entity)-[:ACTIVITY_INPUT]->(:Activity)-[:ACTIVITY_OUTPUT]->(e:Entity {uuid: $uuid})
	RETURN DISTINCT parent AS e`

func (s *Store) GetDirectAncestors(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_direct_ancestors", time.Now())
	return s.readMany(ctx, directAncestorsQuery, map[string]any{"uuid": uuid})
}

// GetProvenance walks the provenance DAG upward from the entity, including
// the Activity nodes, and returns the nodes with the edges between them.
// depth bounds the traversal in entity generations; depth <= 0 is unbounded.
func (s *Store) GetProvenance(ctx context.Context, uuid string, depth int) (ports.ProvenanceGraph, error) {
	defer s.observe("get_provenance", time.Now())

	// Each entity generation is two hops: entity <- activity <- entity.
	bound := "*"
	if depth > 0 {
		bound = fmt.Sprintf("*..%d", depth*2)
	}
	query := fmt.Sprintf(`
		MATCH (e:Entity {uuid: $uuid})
		OPTIONAL MATCH p = (e)<-[:ACTIVITY_OUTPUT|ACTIVITY_INPUT%s]-(n)
		RETURN e, collect(p) AS paths`, bound)

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, map[string]any{"uuid": uuid})
	if err != nil {
		return ports.ProvenanceGraph{}, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return ports.ProvenanceGraph{}, ports.ErrNotFound
	}

	graph := ports.ProvenanceGraph{}
	seenNodes := map[string]bool{}
	seenEdges := map[string]bool{}

	addNode := func(node neo4j.Node) {
		props := decodeProps(node.Props)
		id, _ := props["uuid"].(string)
		if id == "" || seenNodes[id] {
			return
		}
		seenNodes[id] = true
		graph.Nodes = append(graph.Nodes, props)
	}

	root, _, err := neo4j.GetRecordValue[neo4j.Node](record, "e")
	if err != nil {
		return ports.ProvenanceGraph{}, err
	}
	addNode(root)

	rawPaths, _ := record.Get("paths")
	paths, _ := rawPaths.([]any)
	for _, raw := range rawPaths2Paths(paths) {
		for _, node := range raw.Nodes {
			addNode(node)
		}
		for _, rel := range raw.Relationships {
			source := uuidByElementID(raw.Nodes, rel.StartElementId)
			target := uuidByElementID(raw.Nodes, rel.EndElementId)
			key := source + "|" + rel.Type + "|" + target
			if source == "" || target == "" || seenEdges[key] {
				continue
			}
			seenEdges[key] = true
			graph.Edges = append(graph.Edges, ports.ProvenanceEdge{
				Source: source,
				Target: target,
				Label:  rel.Type,
			})
		}
	}
	return graph, nil
}

func rawPaths2Paths(raw []any) []neo4j.Path {
	out := make([]neo4j.Path, 0, len(raw))
	for _, r := range raw {
		if p, ok := r.(neo4j.Path); ok {
			out = append(out, p)
		}
	}
	return out
}

func uuidByElementID(nodes []neo4j.Node, elementID string) string {
	for _, node := range nodes {
		if node.ElementId == elementID {
			id, _ := node.Props["uuid"].(string)
			return id
		}
	}
	return ""
}

func (s *Store) GetNextRevisionUUID(ctx context.Context, uuid string) (string, error) {
	defer s.observe("get_next_revision_uuid", time.Now())
	return s.readUUID(ctx, `
		MATCH (next:Entity)-[:REVISION_OF]->(e:Entity {uuid: $uuid})
		RETURN next.uuid AS uuid LIMIT 1`,
		map[string]any{"uuid": uuid})
}

// GetPreviousRevisions returns older revisions, nearest first.
func (s *Store) GetPreviousRevisions(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_previous_revisions", time.Now())
	return s.readMany(ctx, `
		MATCH p = (e:Entity {uuid: $uuid})-[:REVISION_OF*]->(prev:Entity)
		RETURN prev AS e ORDER BY length(p)`,
		map[string]any{"uuid": uuid})
}

// GetNextRevisions returns newer revisions, nearest first.
func (s *Store) GetNextRevisions(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_next_revisions", time.Now())
	return s.readMany(ctx, `
		MATCH p = (next:Entity)-[:REVISION_OF*]->(e:Entity {uuid: $uuid})
		RETURN next AS e ORDER BY length(p)`,
		map[string]any{"uuid": uuid})
}

// GetLatestRevision returns the head of the entity's revision chain, which
// is the entity itself when nothing revises it.
func (s *Store) GetLatestRevision(ctx context.Context, uuid string) (map[string]any, error) {
	defer s.observe("get_latest_revision", time.Now())
	return s.readSingle(ctx, `
		MATCH (e:Entity {uuid: $uuid})
		OPTIONAL MATCH p = (head:Entity)-[:REVISION_OF*]->(e)
		WITH e, head, length(p) AS chain
		ORDER BY chain DESC LIMIT 1
		RETURN coalesce(head, e) AS e`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetCollectionEntities(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_collection_entities", time.Now())
	return s.readMany(ctx, `
		MATCH (e:Entity)-[:IN_COLLECTION]->(c:Collection {uuid: $uuid})
		RETURN e ORDER BY e.created_timestamp DESC`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetDatasetCollections(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_dataset_collections", time.Now())
	return s.readMany(ctx, `
		MATCH (d:Entity {uuid: $uuid})-[:IN_COLLECTION]->(c:Collection)
		RETURN c AS e`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetDatasetUpload(ctx context.Context, uuid string) (map[string]any, error) {
	defer s.observe("get_dataset_upload", time.Now())
	return s.readSingle(ctx, `
		MATCH (d:Entity {uuid: $uuid})-[:IN_UPLOAD]->(u:Upload)
		RETURN u AS e LIMIT 1`,
		map[string]any{"uuid": uuid})
}

func (s *Store) GetUploadDatasets(ctx context.Context, uuid string) ([]map[string]any, error) {
	defer s.observe("get_upload_datasets", time.Now())
	return s.readMany(ctx, `
		MATCH (d:Dataset)-[:IN_UPLOAD]->(u:Upload {uuid: $uuid})
		RETURN d AS e ORDER BY d.created_timestamp DESC`,
		map[string]any{"uuid": uuid})
}

// LinkToDirectAncestors rebuilds the entity's provenance inputs: existing
// ACTIVITY_INPUT edges into its Activity are dropped and replaced.
func (s *Store) LinkToDirectAncestors(ctx context.Context, uuid string, ancestorUUIDs []string) error {
	defer s.observe("link_direct_ancestors", time.Now())
	return s.write(ctx, `
		MATCH (e:Entity {uuid: $uuid})<-[:ACTIVITY_OUTPUT]-(a:Activity)
		OPTIONAL MATCH (:Entity)-[old:ACTIVITY_INPUT]->(a)
		DELETE old
		WITH DISTINCT a
		MATCH (anc:Entity) WHERE anc.uuid IN $ancestors
		MERGE (anc)-[:ACTIVITY_INPUT]->(a)`,
		map[string]any{"uuid": uuid, "ancestors": ancestorUUIDs})
}

// LinkCollectionToEntities replaces the collection's membership with the
// given entities.
func (s *Store) LinkCollectionToEntities(ctx context.Context, collectionUUID string, entityUUIDs []string) error {
	defer s.observe("link_collection_entities", time.Now())
	return s.write(ctx, `
		MATCH (c:Collection {uuid: $uuid})
		OPTIONAL MATCH (:Entity)-[old:IN_COLLECTION]->(c)
		DELETE old
		WITH DISTINCT c
		MATCH (e:Entity) WHERE e.uuid IN $entities
		MERGE (e)-[:IN_COLLECTION]->(c)`,
		map[string]any{"uuid": collectionUUID, "entities": entityUUIDs})
}

// LinkDatasetsToUpload attaches datasets to an upload; existing attachments
// are kept.
func (s *Store) LinkDatasetsToUpload(ctx context.Context, uploadUUID string, datasetUUIDs []string) error {
	defer s.observe("link_datasets_upload", time.Now())
	return s.write(ctx, `
		MATCH (u:Upload {uuid: $uuid})
		MATCH (d:Dataset) WHERE d.uuid IN $datasets
		MERGE (d)-[:IN_UPLOAD]->(u)`,
		map[string]any{"uuid": uploadUUID, "datasets": datasetUUIDs})
}

func (s *Store) LinkToPreviousRevision(ctx context.Context, uuid, previousUUID string) error {
	defer s.observe("link_previous_revision", time.Now())
	return s.write(ctx, `
		MATCH (e:Entity {uuid: $uuid})
		MATCH (prev:Entity {uuid: $previous})
		MERGE (e)-[:REVISION_OF]->(prev)`,
		map[string]any{"uuid": uuid, "previous": previousUUID})
}

// CountAttachedPublishedDatasets counts published datasets reachable
// downward from the entity.
func (s *Store) CountAttachedPublishedDatasets(ctx context.Context, uuid string) (int, error) {
	defer s.observe("count_published_datasets", time.Now())

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (e:Entity {uuid: $uuid})-[:ACTIVITY_INPUT|ACTIVITY_OUTPUT*]->(d:Dataset {status: $status})
		RETURN count(DISTINCT d) AS n`,
		map[string]any{"uuid": uuid, "status": entity.StatusPublished})
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	n, _, err := neo4j.GetRecordValue[int64](record, "n")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) observe(op string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveQuery(op, time.Since(start))
	}
}

// readSingle runs a query expected to return one node as column e,
// translating an empty result to ports.ErrNotFound.
func (s *Store) readSingle(ctx context.Context, query string, params map[string]any) (map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, ports.ErrNotFound
	}
	return nodeProps(record, "e")
}

// readMany runs a query returning zero or more nodes as column e.
func (s *Store) readMany(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		props, err := nodeProps(record, "e")
		if err != nil {
			return nil, err
		}
		out = append(out, props)
	}
	return out, nil
}

// readUUID runs a query returning a single uuid column, with ErrNotFound on
// an empty result.
func (s *Store) readUUID(ctx context.Context, query string, params map[string]any) (string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return "", err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return "", ports.ErrNotFound
	}
	uuid, _, err := neo4j.GetRecordValue[string](record, "uuid")
	if err != nil {
		return "", err
	}
	return uuid, nil
}

// write runs a linkage statement in a managed transaction.
func (s *Store) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		created := summary.Counters().RelationshipsCreated()
		s.logger.Debug().Int("relationships_created", created).Msg("linkage written")
		return nil, nil
	})
	return err
}

func runSingleNode(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (map[string]any, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, ports.ErrNotFound
	}
	return nodeProps(record, "e")
}

func nodeProps(record *neo4j.Record, key string) (map[string]any, error) {
	node, _, err := neo4j.GetRecordValue[neo4j.Node](record, key)
	if err != nil {
		return nil, fmt.Errorf("extract node %s: %w", key, err)
	}
	return decodeProps(node.Props), nil
}
