package app_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// fakeStore is an in-memory ports.EntityStore holding entities and the
// provenance, membership and revision edges between them.
type fakeStore struct {
	mu       sync.Mutex
	entities map[string]map[string]any

	// ancestors[child] lists direct ancestor uuids.
	ancestors map[string][]string
	// members[collection] lists member entity uuids.
	members map[string][]string
	// uploads[upload] lists attached dataset uuids.
	uploads map[string][]string
	// previous[newer] names the older revision.
	previous map[string]string

	activities     []map[string]any
	pingErr        error
	directAncCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:  map[string]map[string]any{},
		ancestors: map[string][]string{},
		members:   map[string][]string{},
		uploads:   map[string][]string{},
		previous:  map[string]string{},
	}
}

func (f *fakeStore) seed(record map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uuid, _ := record["uuid"].(string)
	f.entities[uuid] = clone(record)
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeStore) CreateEntity(_ context.Context, entityType string, props, activity map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uuid, _ := props["uuid"].(string)
	if uuid == "" {
		return nil, fmt.Errorf("create without uuid")
	}
	f.entities[uuid] = clone(props)
	if activity != nil {
		f.activities = append(f.activities, clone(activity))
	}
	return clone(props), nil
}

func (f *fakeStore) UpdateEntity(_ context.Context, uuid string, props map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.entities[uuid]
	if !ok {
		return nil, ports.ErrNotFound
	}
	for k, v := range props {
		record[k] = v
	}
	return clone(record), nil
}

func (f *fakeStore) GetEntityByUUID(_ context.Context, uuid string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.entities[uuid]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return clone(record), nil
}

func (f *fakeStore) GetEntitiesByType(_ context.Context, entityType string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, record := range f.entities {
		if record["entity_type"] == entityType {
			out = append(out, clone(record))
		}
	}
	return out, nil
}

func (f *fakeStore) resolve(uuids []string) []map[string]any {
	var out []map[string]any
	for _, u := range uuids {
		if record, ok := f.entities[u]; ok {
			out = append(out, clone(record))
		}
	}
	return out
}

func (f *fakeStore) GetAncestors(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var walk func(string)
	var order []string
	walk = func(u string) {
		for _, anc := range f.ancestors[u] {
			if !seen[anc] {
				seen[anc] = true
				order = append(order, anc)
				walk(anc)
			}
		}
	}
	walk(uuid)
	return f.resolve(order), nil
}

func (f *fakeStore) GetDescendants(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var order []string
	var walk func(string)
	walk = func(u string) {
		for child, ancs := range f.ancestors {
			for _, anc := range ancs {
				if anc == u && !seen[child] {
					seen[child] = true
					order = append(order, child)
					walk(child)
				}
			}
		}
	}
	walk(uuid)
	return f.resolve(order), nil
}

func (f *fakeStore) GetParents(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve(f.ancestors[uuid]), nil
}

func (f *fakeStore) GetChildren(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var children []string
	for child, ancs := range f.ancestors {
		for _, anc := range ancs {
			if anc == uuid {
				children = append(children, child)
			}
		}
	}
	return f.resolve(children), nil
}

func (f *fakeStore) GetProvenance(_ context.Context, uuid string, depth int) (ports.ProvenanceGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	graph := ports.ProvenanceGraph{}
	if record, ok := f.entities[uuid]; ok {
		graph.Nodes = append(graph.Nodes, clone(record))
	}
	for _, anc := range f.ancestors[uuid] {
		if record, ok := f.entities[anc]; ok {
			graph.Nodes = append(graph.Nodes, clone(record))
			graph.Edges = append(graph.Edges, ports.ProvenanceEdge{Source: anc, Target: uuid, Label: "ACTIVITY_INPUT"})
		}
	}
	return graph, nil
}

func (f *fakeStore) GetNextRevisionUUID(_ context.Context, uuid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for newer, older := range f.previous {
		if older == uuid {
			return newer, nil
		}
	}
	return "", ports.ErrNotFound
}

func (f *fakeStore) GetPreviousRevisions(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chain []string
	for u := f.previous[uuid]; u != ""; u = f.previous[u] {
		chain = append(chain, u)
	}
	return f.resolve(chain), nil
}

func (f *fakeStore) GetNextRevisions(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chain []string
	u := uuid
	for {
		next := ""
		for newer, older := range f.previous {
			if older == u {
				next = newer
				break
			}
		}
		if next == "" {
			break
		}
		chain = append(chain, next)
		u = next
	}
	return f.resolve(chain), nil
}

func (f *fakeStore) GetLatestRevision(_ context.Context, uuid string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := uuid
	for {
		next := ""
		for newer, older := range f.previous {
			if older == u {
				next = newer
				break
			}
		}
		if next == "" {
			break
		}
		u = next
	}
	record, ok := f.entities[u]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return clone(record), nil
}

func (f *fakeStore) GetCollectionEntities(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve(f.members[uuid]), nil
}

func (f *fakeStore) GetDatasetCollections(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var collections []string
	for coll, members := range f.members {
		for _, m := range members {
			if m == uuid {
				collections = append(collections, coll)
			}
		}
	}
	return f.resolve(collections), nil
}

func (f *fakeStore) GetDatasetUpload(_ context.Context, uuid string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for upload, datasets := range f.uploads {
		for _, d := range datasets {
			if d == uuid {
				record, ok := f.entities[upload]
				if !ok {
					return nil, ports.ErrNotFound
				}
				return clone(record), nil
			}
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeStore) GetUploadDatasets(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve(f.uploads[uuid]), nil
}

func (f *fakeStore) GetDirectAncestors(_ context.Context, uuid string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directAncCalls++
	return f.resolve(f.ancestors[uuid]), nil
}

func (f *fakeStore) LinkToDirectAncestors(_ context.Context, uuid string, ancestorUUIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ancestors[uuid] = append([]string(nil), ancestorUUIDs...)
	return nil
}

func (f *fakeStore) LinkCollectionToEntities(_ context.Context, collectionUUID string, entityUUIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[collectionUUID] = append([]string(nil), entityUUIDs...)
	return nil
}

func (f *fakeStore) LinkDatasetsToUpload(_ context.Context, uploadUUID string, datasetUUIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[uploadUUID] = append(f.uploads[uploadUUID], datasetUUIDs...)
	return nil
}

func (f *fakeStore) LinkToPreviousRevision(_ context.Context, uuid, previousUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previous[uuid] = previousUUID
	return nil
}

func (f *fakeStore) CountAttachedPublishedDatasets(_ context.Context, uuid string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	seen := map[string]bool{}
	var walk func(string)
	walk = func(u string) {
		for child, ancs := range f.ancestors {
			for _, anc := range ancs {
				if anc == u && !seen[child] {
					seen[child] = true
					if record, ok := f.entities[child]; ok &&
						record["entity_type"] == "Dataset" && record["status"] == "Published" {
						count++
					}
					walk(child)
				}
			}
		}
	}
	walk(uuid)
	return count, nil
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.pingErr
}

// fakeIDs issues sequential identifier tuples and resolves anything it has
// issued or registered.
type fakeIDs struct {
	mu    sync.Mutex
	n     int
	known map[string]ports.Identifiers
}

func newFakeIDs() *fakeIDs {
	return &fakeIDs{known: map[string]ports.Identifiers{}}
}

func (f *fakeIDs) register(ids ports.Identifiers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[ids.UUID] = ids
	if ids.SenNetID != "" {
		f.known[ids.SenNetID] = ids
	}
}

func (f *fakeIDs) NewIDs(_ context.Context, entityType string, _ *auth.User) (ports.Identifiers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	ids := ports.Identifiers{
		UUID:     fmt.Sprintf("uuid-%d", f.n),
		SenNetID: fmt.Sprintf("SNT%03d.ABCD.%03d", f.n, f.n),
	}
	f.known[ids.UUID] = ids
	f.known[ids.SenNetID] = ids
	return ids, nil
}

func (f *fakeIDs) Resolve(_ context.Context, id string) (ports.Identifiers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.known[id]
	if !ok {
		return ports.Identifiers{}, ports.ErrNotFound
	}
	return ids, nil
}
