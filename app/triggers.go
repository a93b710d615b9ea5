package app

import (
	"context"
	"fmt"

	"github.com/sennetconsortium/entity-api/core/trigger"
	"github.com/sennetconsortium/entity-api/domain/entity"
)

// registerTriggers binds every trigger name the schema may reference. The
// registry is checked against the schema right after, so a binding missing
// here fails service construction, not a request.
func (s *Service) registerTriggers(reg *trigger.Registry) error {
	bindings := map[string]trigger.Func{
		"set_uuid":             copyFromIncoming,
		"set_sennet_id":        copyFromIncoming,
		"set_entity_type":      setEntityType,
		"set_timestamp":        setTimestamp,
		"set_user_sub":         setUserSub,
		"set_user_email":       setUserEmail,
		"set_user_displayname": setUserDisplayName,
		"set_group_uuid":       setGroupUUID,
		"set_group_name":       setGroupName,

		"set_data_access_level":        setDataAccessLevel,
		"set_dataset_status_new":       setStatusNew,
		"set_upload_status_new":        setStatusNew,
		"update_status":                updateStatus,
		"set_activity_creation_action": setActivityCreationAction,

		"link_sample_to_direct_ancestor":   s.linkSampleToDirectAncestor,
		"link_dataset_to_direct_ancestors": s.linkDatasetToDirectAncestors,
		"link_collection_to_entities":      s.linkCollectionToEntities,
		"link_to_previous_revision":        s.linkToPreviousRevision,
		"link_datasets_to_upload":          s.linkDatasetsToUpload,

		"get_sample_direct_ancestor":   s.getSampleDirectAncestor,
		"get_dataset_direct_ancestors": s.getDatasetDirectAncestors,
		"get_next_revision_uuid":       s.getNextRevisionUUID,
		"get_collection_entities":      s.getCollectionEntities,
		"get_dataset_collections":      s.getDatasetCollections,
		"get_dataset_upload":           s.getDatasetUpload,
		"get_upload_datasets":          s.getUploadDatasets,
	}
	for name, fn := range bindings {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// copyFromIncoming passes through a value the service seeded before the
// trigger run, such as the identifiers issued by the id collaborator.
func copyFromIncoming(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	v, ok := incoming[prop]
	if !ok || v == nil || v == "" {
		return "", nil, fmt.Errorf("%s was not seeded before trigger run", prop)
	}
	return prop, v, nil
}

func setEntityType(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, tc.EntityType, nil
}

// setTimestamp derives epoch milliseconds from the injected clock; the same
// trigger serves both creation and auto-updated modification timestamps.
func setTimestamp(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, tc.Clock.Now().UnixMilli(), nil
}

func setUserSub(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, tc.User.Sub, nil
}

func setUserEmail(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, tc.User.Email, nil
}

func setUserDisplayName(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, tc.User.DisplayName, nil
}

// setGroupUUID resolves the owning data provider group. An explicit
// group_uuid must name a provider group the caller belongs to (admins may
// write on behalf of any group); otherwise the caller must belong to exactly
// one provider group, which is used implicitly.
func setGroupUUID(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	provider := tc.User.ProviderGroups()

	if v, ok := incoming[prop].(string); ok && v != "" {
		if tc.User.IsAdmin {
			return prop, v, nil
		}
		for _, g := range provider {
			if g.UUID == v {
				return prop, v, nil
			}
		}
		return "", nil, ErrUnknownGroup
	}

	switch len(provider) {
	case 0:
		return "", nil, ErrNoProviderGroup
	case 1:
		return prop, provider[0].UUID, nil
	default:
		return "", nil, ErrMultipleProviderGroups
	}
}

// setGroupName resolves the display name of the group_uuid derived just
// before it in declaration order.
func setGroupName(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	groupUUID, _ := incoming["group_uuid"].(string)
	for _, g := range tc.User.Groups {
		if g.UUID == groupUUID {
			return prop, g.Name, nil
		}
	}
	return "", nil, fmt.Errorf("cannot resolve name of group %s", groupUUID)
}

// setDataAccessLevel derives the initial visibility tier. Datasets holding
// human genetic sequences are protected; everything else starts consortium.
// Ancestors become public later, when a published dataset is attached below
// them (see Service.recalcAncestorAccess).
func setDataAccessLevel(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	if entity.Type(tc.EntityType) == entity.TypeDataset {
		if genetic, _ := incoming["contains_human_genetic_sequences"].(bool); genetic {
			return prop, string(entity.AccessLevelProtected), nil
		}
	}
	return prop, string(entity.AccessLevelConsortium), nil
}

func setStatusNew(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, entity.StatusNew, nil
}

// updateStatus canonicalizes a client-supplied status; the enum validator
// has already vetted the value set.
func updateStatus(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	v, _ := incoming[prop].(string)
	return prop, entity.NormalizeStatus(v), nil
}

// setActivityCreationAction names the provenance action after the entity
// type being created, e.g. "Create Dataset Activity".
func setActivityCreationAction(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	return prop, fmt.Sprintf("Create %s Activity", tc.EntityType), nil
}

// ---------------------------------------------------------------------------
// linkage triggers (after-create / after-update)
// ---------------------------------------------------------------------------

func (s *Service) linkSampleToDirectAncestor(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	ancestor, _ := incoming[prop].(string)
	if ancestor == "" {
		return prop, nil, nil
	}
	return prop, nil, s.store.LinkToDirectAncestors(ctx, uuidOf(incoming), []string{ancestor})
}

func (s *Service) linkDatasetToDirectAncestors(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	uuids, err := stringList(incoming[prop])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", prop, err)
	}
	if len(uuids) == 0 {
		return prop, nil, nil
	}
	return prop, nil, s.store.LinkToDirectAncestors(ctx, uuidOf(incoming), uuids)
}

func (s *Service) linkCollectionToEntities(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	uuids, err := stringList(incoming[prop])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", prop, err)
	}
	if len(uuids) == 0 {
		return prop, nil, nil
	}
	return prop, nil, s.store.LinkCollectionToEntities(ctx, uuidOf(incoming), uuids)
}

func (s *Service) linkToPreviousRevision(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	previous, _ := incoming[prop].(string)
	if previous == "" {
		return prop, nil, nil
	}
	return prop, nil, s.store.LinkToPreviousRevision(ctx, uuidOf(incoming), previous)
}

func (s *Service) linkDatasetsToUpload(ctx context.Context, tc *trigger.Context, prop string, existing, incoming map[string]any) (string, any, error) {
	uuids, err := stringList(incoming[prop])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", prop, err)
	}
	if len(uuids) == 0 {
		return prop, nil, nil
	}
	return prop, nil, s.store.LinkDatasetsToUpload(ctx, uuidOf(incoming), uuids)
}

// stringList coerces a decoded JSON array into string elements.
func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of uuids, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		u, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a uuid string, got %T", item)
		}
		out = append(out, u)
	}
	return out, nil
}
