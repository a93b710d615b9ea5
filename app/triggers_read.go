package app

import (
	"context"
	"errors"

	"github.com/sennetconsortium/entity-api/core/trigger"
	"github.com/sennetconsortium/entity-api/ports"
)

// The on-read triggers expand graph neighborhoods into nested documents.
// Nested entities render with nestedSkip so expansion stops one level deep,
// and anonymous callers only see the public neighbors.

func (s *Service) getSampleDirectAncestor(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	docs, err := s.expandNeighbors(ctx, tc, existing, s.store.GetDirectAncestors)
	if err != nil {
		return "", nil, err
	}
	if len(docs) == 0 {
		return prop, nil, nil
	}
	return prop, docs[0], nil
}

func (s *Service) getDatasetDirectAncestors(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	docs, err := s.expandNeighbors(ctx, tc, existing, s.store.GetDirectAncestors)
	if err != nil {
		return "", nil, err
	}
	return prop, anyList(docs), nil
}

func (s *Service) getNextRevisionUUID(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	next, err := s.store.GetNextRevisionUUID(ctx, uuidOf(existing))
	if errors.Is(err, ports.ErrNotFound) {
		return prop, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if next == "" {
		return prop, nil, nil
	}
	return prop, next, nil
}

func (s *Service) getCollectionEntities(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	docs, err := s.expandNeighbors(ctx, tc, existing, s.store.GetCollectionEntities)
	if err != nil {
		return "", nil, err
	}
	return prop, anyList(docs), nil
}

func (s *Service) getDatasetCollections(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	docs, err := s.expandNeighbors(ctx, tc, existing, s.store.GetDatasetCollections)
	if err != nil {
		return "", nil, err
	}
	return prop, anyList(docs), nil
}

func (s *Service) getDatasetUpload(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	record, err := s.store.GetDatasetUpload(ctx, uuidOf(existing))
	if errors.Is(err, ports.ErrNotFound) {
		return prop, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if tc.User.Anonymous() {
		// Uploads are never public.
		return prop, nil, nil
	}
	doc, err := s.renderer.Entity(ctx, tc, record, tc.User.AccessLevel(), nestedSkip...)
	if err != nil {
		return "", nil, err
	}
	return prop, doc, nil
}

func (s *Service) getUploadDatasets(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	docs, err := s.expandNeighbors(ctx, tc, existing, s.store.GetUploadDatasets)
	if err != nil {
		return "", nil, err
	}
	return prop, anyList(docs), nil
}

// expandNeighbors fetches a graph neighborhood of the entity being rendered
// and renders each neighbor one level deep at the caller's level.
func (s *Service) expandNeighbors(ctx context.Context, tc *trigger.Context, existing map[string]any, fn func(context.Context, string) ([]map[string]any, error)) ([]map[string]any, error) {
	records, err := fn(ctx, uuidOf(existing))
	if err != nil {
		return nil, err
	}
	return s.renderVisible(ctx, tc.User, records)
}

// anyList converts rendered documents to a JSON-encodable []any; an empty
// expansion renders as nil so the property is omitted.
func anyList(docs []map[string]any) any {
	if len(docs) == 0 {
		return nil
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
