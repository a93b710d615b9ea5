// Package app orchestrates the entity lifecycle: validate the request body,
// run the schema-bound triggers, persist through the graph store port, and
// render the response document. It owns the trigger registry, so every
// trigger name the schema binds is resolved here at construction time.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sennetconsortium/entity-api/core/render"
	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/core/trigger"
	"github.com/sennetconsortium/entity-api/core/validation"
	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/domain/entity"
	"github.com/sennetconsortium/entity-api/ports"
)

// Visibility values reported by the visibility endpoint.
const (
	VisibilityPublic    = "public"
	VisibilityNonPublic = "non-public"
)

// nestedSkip suppresses the recursive on-read triggers when an entity is
// rendered inside another entity's document. Without it a dataset would
// render its collections, which render their entities, and so on.
var nestedSkip = []string{
	"direct_ancestor",
	"direct_ancestors",
	"collections",
	"upload",
	"datasets",
	"entities",
	"next_revision_uuid",
}

// Deps are the collaborators the service needs. All fields are required.
type Deps struct {
	Schema *schema.Schema
	Store  ports.EntityStore
	IDs    ports.IDService
	Cache  ports.Cache
	Clock  ports.Clock
	Logger zerolog.Logger
}

// Service implements the entity operations behind the HTTP handlers.
type Service struct {
	schema    *schema.Schema
	validator *validation.Validator
	registry  *trigger.Registry
	renderer  *render.Renderer
	store     ports.EntityStore
	ids       ports.IDService
	cache     ports.Cache
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewService builds the service and verifies at construction time that every
// trigger and validator name the schema binds has a registered function.
// A schema referencing an unknown name is a deployment error, not a request
// error, so it fails here.
func NewService(deps Deps) (*Service, error) {
	s := &Service{
		schema: deps.Schema,
		store:  deps.Store,
		ids:    deps.IDs,
		cache:  deps.Cache,
		clock:  deps.Clock,
		logger: deps.Logger,
	}

	s.registry = trigger.NewRegistry()
	if err := s.registerTriggers(s.registry); err != nil {
		return nil, fmt.Errorf("register triggers: %w", err)
	}
	if err := s.registry.Check(deps.Schema); err != nil {
		return nil, err
	}

	s.validator = validation.New(deps.Schema)
	for name, fn := range validation.DefaultChecks() {
		if err := s.validator.RegisterCheck(name, fn); err != nil {
			return nil, fmt.Errorf("register check: %w", err)
		}
	}
	if err := s.validator.CheckCompleteness(); err != nil {
		return nil, err
	}

	s.renderer = render.New(deps.Schema, s.registry)
	return s, nil
}

// EntityTypes lists the creatable entity types.
func (s *Service) EntityTypes() []string {
	return s.schema.EntityTypes()
}

// CreateEntity validates and persists a new entity of the given type,
// returning the rendered document as the caller sees it.
func (s *Service) CreateEntity(ctx context.Context, user *auth.User, entityType string, body map[string]any) (map[string]any, error) {
	t, err := entity.NormalizeType(entityType)
	if err != nil || !s.schema.HasEntityType(string(t)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, entityType)
	}
	typ := string(t)
	def, err := s.schema.TypeDef(typ)
	if err != nil {
		return nil, err
	}

	if result := s.validator.ValidateCreate(typ, body); !result.Valid {
		return nil, &ValidationError{Result: result}
	}
	if t == entity.TypeDataset {
		if err := s.checkPreviousRevision(ctx, body); err != nil {
			return nil, err
		}
	}

	identifiers, err := s.ids.NewIDs(ctx, typ, user)
	if err != nil {
		return nil, fmt.Errorf("register identifiers: %w", err)
	}

	merged := make(map[string]any, len(body)+2)
	for k, v := range body {
		merged[k] = v
	}
	merged["uuid"] = identifiers.UUID
	merged["sennet_id"] = identifiers.SenNetID

	tc := s.triggerContext(user, typ)
	patch, err := trigger.Run(ctx, tc, s.registry, trigger.PhaseBeforeCreate, def, map[string]any{}, merged)
	if err != nil {
		return nil, err
	}
	applyPatch(merged, patch)

	var activity map[string]any
	if t != entity.TypeCollection {
		activity, err = s.buildActivity(ctx, user, typ)
		if err != nil {
			return nil, err
		}
	}

	record, err := s.store.CreateEntity(ctx, typ, persistable(def, merged), activity)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", strings.ToLower(typ), err)
	}

	if err := s.runAfter(ctx, tc, trigger.PhaseAfterCreate, def, record, merged); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entity_type", typ).
		Str("uuid", identifiers.UUID).
		Str("sennet_id", identifiers.SenNetID).
		Str("user", user.Sub).
		Msg("entity created")

	return s.renderer.Entity(ctx, tc, record, user.AccessLevel())
}

// UpdateEntity applies a partial update to an existing entity. Only members
// of the entity's group (or admins) may write.
func (s *Service) UpdateEntity(ctx context.Context, user *auth.User, id string, body map[string]any) (map[string]any, error) {
	existing, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	typ, _ := existing["entity_type"].(string)
	def, err := s.schema.TypeDef(typ)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(user, existing); err != nil {
		return nil, err
	}

	if result := s.validator.ValidateUpdate(typ, body, existing); !result.Valid {
		return nil, &ValidationError{Result: result}
	}

	merged := make(map[string]any, len(body))
	for k, v := range body {
		merged[k] = v
	}

	tc := s.triggerContext(user, typ)
	patch, err := trigger.Run(ctx, tc, s.registry, trigger.PhaseBeforeUpdate, def, existing, merged)
	if err != nil {
		return nil, err
	}
	applyPatch(merged, patch)

	uuid, _ := existing["uuid"].(string)
	record, err := s.store.UpdateEntity(ctx, uuid, persistable(def, merged))
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", strings.ToLower(typ), uuid, err)
	}

	if err := s.runAfter(ctx, tc, trigger.PhaseAfterUpdate, def, record, merged); err != nil {
		return nil, err
	}

	if entity.Type(typ) == entity.TypeDataset && crossesPublication(existing, record) {
		if err := s.recalcAncestorAccess(ctx, uuid); err != nil {
			return nil, err
		}
	}

	s.evict(uuid)
	s.logger.Info().
		Str("entity_type", typ).
		Str("uuid", uuid).
		Str("user", user.Sub).
		Msg("entity updated")

	return s.renderer.Entity(ctx, tc, record, user.AccessLevel())
}

// GetEntity returns the rendered document for one entity, enforcing the
// caller's access level against the entity's visibility.
func (s *Service) GetEntity(ctx context.Context, user *auth.User, id string) (map[string]any, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(user, record); err != nil {
		return nil, err
	}

	tc := s.triggerContext(user, typeOf(record))
	doc, err := s.completeCached(ctx, tc, record)
	if err != nil {
		return nil, err
	}
	return s.renderer.Project(doc, user.AccessLevel())
}

// Visibility reports whether an entity is publicly visible without a token.
func (s *Service) Visibility(ctx context.Context, id string) (string, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if isPublic(record) {
		return VisibilityPublic, nil
	}
	return VisibilityNonPublic, nil
}

// EntitiesByType lists all entities of one type at the caller's level.
// Entities the caller may not see are omitted rather than erroring.
func (s *Service) EntitiesByType(ctx context.Context, user *auth.User, entityType string) ([]map[string]any, error) {
	t, err := entity.NormalizeType(entityType)
	if err != nil || !s.schema.HasEntityType(string(t)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, entityType)
	}
	records, err := s.store.GetEntitiesByType(ctx, string(t))
	if err != nil {
		return nil, err
	}
	return s.renderVisible(ctx, user, records)
}

// Ancestors returns every entity reachable upward from the given entity in
// the provenance DAG.
func (s *Service) Ancestors(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.traverse(ctx, user, id, s.store.GetAncestors)
}

// Descendants returns every entity reachable downward.
func (s *Service) Descendants(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.traverse(ctx, user, id, s.store.GetDescendants)
}

// Parents returns the immediate provenance ancestors.
func (s *Service) Parents(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.traverse(ctx, user, id, s.store.GetParents)
}

// Children returns the immediate provenance descendants.
func (s *Service) Children(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.traverse(ctx, user, id, s.store.GetChildren)
}

// Provenance returns the provenance DAG extract rooted at the entity, with
// each node projected at the caller's access level.
func (s *Service) Provenance(ctx context.Context, user *auth.User, id string, depth int) (ports.ProvenanceGraph, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return ports.ProvenanceGraph{}, err
	}
	if err := s.authorizeRead(user, record); err != nil {
		return ports.ProvenanceGraph{}, err
	}
	uuid, _ := record["uuid"].(string)

	graph, err := s.store.GetProvenance(ctx, uuid, depth)
	if err != nil {
		return ports.ProvenanceGraph{}, err
	}

	level := user.AccessLevel()
	nodes := make([]map[string]any, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		// Activity nodes carry no schema visibility rules beyond
		// projection; entity nodes are filtered like any other read.
		doc, err := s.renderer.Project(node, level, nestedSkip...)
		if err != nil {
			return ports.ProvenanceGraph{}, err
		}
		nodes = append(nodes, doc)
	}
	graph.Nodes = nodes
	return graph, nil
}

// PreviousRevisions returns the revision chain behind a dataset, newest
// first. Anonymous callers see only published revisions.
func (s *Service) PreviousRevisions(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.revisions(ctx, user, id, s.store.GetPreviousRevisions)
}

// NextRevisions returns the revision chain ahead of a dataset, oldest first.
func (s *Service) NextRevisions(ctx context.Context, user *auth.User, id string) ([]map[string]any, error) {
	return s.revisions(ctx, user, id, s.store.GetNextRevisions)
}

// LatestRevision returns the newest revision of a dataset the caller may
// see: the head of the chain for consortium callers, the newest published
// revision for anonymous ones.
func (s *Service) LatestRevision(ctx context.Context, user *auth.User, id string) (map[string]any, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(user, record); err != nil {
		return nil, err
	}
	uuid, _ := record["uuid"].(string)

	latest, err := s.store.GetLatestRevision(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if user.Anonymous() && !isPublic(latest) {
		// Walk back to the newest published revision.
		chain, err := s.store.GetPreviousRevisions(ctx, uuidOf(latest))
		if err != nil {
			return nil, err
		}
		latest = nil
		for _, rev := range chain {
			if isPublic(rev) {
				latest = rev
				break
			}
		}
		if latest == nil {
			return nil, ports.ErrNotFound
		}
	}

	tc := s.triggerContext(user, typeOf(latest))
	return s.renderer.Entity(ctx, tc, latest, user.AccessLevel(), nestedSkip...)
}

// FlushEntity evicts one entity's cached document.
func (s *Service) FlushEntity(ctx context.Context, id string) error {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	s.evict(uuidOf(record))
	return nil
}

// evict drops an entity's cached documents at every access level.
func (s *Service) evict(uuid string) {
	for _, level := range entity.AccessLevels() {
		s.cache.Delete(cacheKey(uuid, level))
	}
}

// FlushAll evicts every cached document.
func (s *Service) FlushAll() {
	s.cache.Flush()
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

// fetch resolves any public identifier to the raw stored record.
func (s *Service) fetch(ctx context.Context, id string) (map[string]any, error) {
	identifiers, err := s.ids.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.GetEntityByUUID(ctx, identifiers.UUID)
}

// completeCached runs the on-read triggers, consulting the cache first.
// Nested documents inside a completed entity are already projected at the
// caller's level, so cache entries are keyed by uuid and level.
func (s *Service) completeCached(ctx context.Context, tc *trigger.Context, record map[string]any) (map[string]any, error) {
	key := cacheKey(uuidOf(record), tc.User.AccessLevel())
	if doc, ok := s.cache.Get(key); ok {
		return doc, nil
	}
	doc, err := s.renderer.Complete(ctx, tc, record)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, doc)
	return doc, nil
}

func cacheKey(uuid string, level entity.AccessLevel) string {
	return uuid + ":" + string(level)
}

func (s *Service) traverse(ctx context.Context, user *auth.User, id string, fn func(context.Context, string) ([]map[string]any, error)) ([]map[string]any, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(user, record); err != nil {
		return nil, err
	}
	records, err := fn(ctx, uuidOf(record))
	if err != nil {
		return nil, err
	}
	return s.renderVisible(ctx, user, records)
}

func (s *Service) revisions(ctx context.Context, user *auth.User, id string, fn func(context.Context, string) ([]map[string]any, error)) ([]map[string]any, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.Type(typeOf(record)) != entity.TypeDataset {
		return nil, fmt.Errorf("%w: revisions exist only for datasets", ErrUnsupportedType)
	}
	if err := s.authorizeRead(user, record); err != nil {
		return nil, err
	}
	records, err := fn(ctx, uuidOf(record))
	if err != nil {
		return nil, err
	}
	return s.renderVisible(ctx, user, records)
}

// renderVisible renders a record list at the caller's level, silently
// dropping entities an anonymous caller may not see.
func (s *Service) renderVisible(ctx context.Context, user *auth.User, records []map[string]any) ([]map[string]any, error) {
	level := user.AccessLevel()
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		if user.Anonymous() && !isPublic(record) {
			continue
		}
		tc := s.triggerContext(user, typeOf(record))
		doc, err := s.renderer.Entity(ctx, tc, record, level, nestedSkip...)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// authorizeRead rejects anonymous reads of non-public entities.
func (s *Service) authorizeRead(user *auth.User, record map[string]any) error {
	if user.Anonymous() && !isPublic(record) {
		return fmt.Errorf("%w: entity is not public", ErrForbidden)
	}
	return nil
}

// authorizeWrite requires membership in the entity's group, or admin.
func (s *Service) authorizeWrite(user *auth.User, record map[string]any) error {
	if user.IsAdmin {
		return nil
	}
	groupUUID, _ := record["group_uuid"].(string)
	for _, g := range user.GroupUUIDs() {
		if g == groupUUID {
			return nil
		}
	}
	return fmt.Errorf("%w: user is not a member of the entity's group", ErrForbidden)
}

// runAfter executes linkage triggers against the saved record plus the
// transient request values the store did not persist.
func (s *Service) runAfter(ctx context.Context, tc *trigger.Context, phase trigger.Phase, def schema.TypeDef, record, merged map[string]any) error {
	doc := make(map[string]any, len(record)+4)
	for k, v := range record {
		doc[k] = v
	}
	for _, name := range def.Properties.Names() {
		prop, _ := def.Properties.Get(name)
		if !prop.Transient {
			continue
		}
		if v, ok := merged[name]; ok && v != nil {
			doc[name] = v
		}
	}
	_, err := trigger.Run(ctx, tc, s.registry, phase, def, record, doc)
	return err
}

// crossesPublication reports whether an update moved a dataset into or out
// of the Published status.
func crossesPublication(existing, record map[string]any) bool {
	before, _ := existing["status"].(string)
	after, _ := record["status"].(string)
	if before == after {
		return false
	}
	return before == entity.StatusPublished || after == entity.StatusPublished
}

// recalcAncestorAccess re-derives the access level of every Source and
// Sample above a dataset whose publication state changed: an ancestor with
// a published dataset beneath it is public, otherwise consortium. Protected
// datasets keep their own level; only ancestors are touched.
func (s *Service) recalcAncestorAccess(ctx context.Context, uuid string) error {
	ancestors, err := s.store.GetAncestors(ctx, uuid)
	if err != nil {
		return err
	}
	for _, ancestor := range ancestors {
		switch entity.Type(typeOf(ancestor)) {
		case entity.TypeSource, entity.TypeSample:
		default:
			continue
		}

		n, err := s.store.CountAttachedPublishedDatasets(ctx, uuidOf(ancestor))
		if err != nil {
			return err
		}
		level := string(entity.AccessLevelConsortium)
		if n > 0 {
			level = string(entity.AccessLevelPublic)
		}
		if current, _ := ancestor["data_access_level"].(string); current == level {
			continue
		}

		if _, err := s.store.UpdateEntity(ctx, uuidOf(ancestor), map[string]any{
			"data_access_level": level,
		}); err != nil {
			return err
		}
		s.evict(uuidOf(ancestor))
	}
	return nil
}

// checkPreviousRevision keeps revision chains singly linked: a new revision
// may only point at a Published dataset that has no next revision yet.
func (s *Service) checkPreviousRevision(ctx context.Context, body map[string]any) error {
	previous, _ := body["previous_revision_uuid"].(string)
	if previous == "" {
		return nil
	}

	record, err := s.store.GetEntityByUUID(ctx, previous)
	if errors.Is(err, ports.ErrNotFound) {
		return revisionViolation(previous, "previous revision does not exist")
	}
	if err != nil {
		return err
	}
	if entity.Type(typeOf(record)) != entity.TypeDataset {
		return revisionViolation(previous, "previous revision must be a dataset")
	}
	if status, _ := record["status"].(string); !strings.EqualFold(status, entity.StatusPublished) {
		return revisionViolation(previous, "previous revision must be published before a new revision can be made of it")
	}

	next, err := s.store.GetNextRevisionUUID(ctx, previous)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	if next != "" {
		return revisionViolation(previous, "previous revision already has a next revision")
	}
	return nil
}

func revisionViolation(value, message string) error {
	result := validation.Result{Valid: true}
	result.Add("previous_revision_uuid", "revision", value, message)
	return &ValidationError{Result: result}
}

// buildActivity derives the Activity node's properties, registering its own
// identifiers with the id service.
func (s *Service) buildActivity(ctx context.Context, user *auth.User, entityType string) (map[string]any, error) {
	def, err := s.schema.TypeDef("Activity")
	if err != nil {
		return nil, err
	}
	identifiers, err := s.ids.NewIDs(ctx, "Activity", user)
	if err != nil {
		return nil, fmt.Errorf("register activity identifiers: %w", err)
	}

	seed := map[string]any{
		"uuid":        identifiers.UUID,
		"sennet_id":   identifiers.SenNetID,
		"entity_type": string(entity.TypeActivity),
	}
	tc := s.triggerContext(user, entityType)
	patch, err := trigger.Run(ctx, tc, s.registry, trigger.PhaseBeforeCreate, def, map[string]any{}, seed)
	if err != nil {
		return nil, err
	}
	applyPatch(seed, patch)
	return persistable(def, seed), nil
}

func (s *Service) triggerContext(user *auth.User, entityType string) *trigger.Context {
	return &trigger.Context{
		User:       user,
		EntityType: entityType,
		Store:      s.store,
		IDs:        s.ids,
		Clock:      s.clock,
		Logger:     s.logger,
	}
}

// applyPatch folds a trigger patch into the working document; nil patch
// values delete the key.
func applyPatch(doc, patch map[string]any) {
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
}

// persistable strips transient properties and nils, leaving what the store
// writes onto the node.
func persistable(def schema.TypeDef, doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		if prop, ok := def.Properties.Get(k); ok && prop.Transient {
			continue
		}
		out[k] = v
	}
	return out
}

// isPublic reports whether a raw record is visible without a token.
func isPublic(record map[string]any) bool {
	status, _ := record["status"].(string)
	switch entity.Type(typeOf(record)) {
	case entity.TypeDataset:
		return status == entity.StatusPublished
	case entity.TypeUpload:
		return false
	case entity.TypeCollection:
		doi, _ := record["registered_doi"].(string)
		return doi != ""
	default:
		level, _ := record["data_access_level"].(string)
		return level == string(entity.AccessLevelPublic)
	}
}

func typeOf(record map[string]any) string {
	t, _ := record["entity_type"].(string)
	return t
}

func uuidOf(record map[string]any) string {
	u, _ := record["uuid"].(string)
	return u
}
