package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// IDService registers and resolves identifiers through the uuid
// collaborator service.
//
// API Contract:
//
//	POST /uuid
//	Request:  {"entity_type": "DATASET", "entity_count": 1}
//	Response: [{"uuid": "...", "sennet_id": "SNT123.ABCD.567", "base_id": "..."}]
//
//	GET /uuid/{id}
//	Response: {"uuid": "...", "sennet_id": "...", "base_id": "..."}
type IDService struct {
	client *Client
}

var _ ports.IDService = (*IDService)(nil)

// NewIDService creates a uuid collaborator client.
func NewIDService(client *Client) *IDService {
	return &IDService{client: client}
}

type wireIdentifiers struct {
	UUID     string `json:"uuid"`
	SenNetID string `json:"sennet_id"`
	BaseID   string `json:"base_id"`
}

// NewIDs registers one identifier tuple for a new entity, forwarding the
// caller's token so the registration is attributed to them.
func (s *IDService) NewIDs(ctx context.Context, entityType string, user *auth.User) (ports.Identifiers, error) {
	req := map[string]any{
		"entity_type":  strings.ToUpper(entityType),
		"entity_count": 1,
	}

	var resp []wireIdentifiers
	if err := s.client.Request(ctx, "POST", "/uuid", user.Token, req, &resp); err != nil {
		return ports.Identifiers{}, err
	}
	if len(resp) == 0 {
		return ports.Identifiers{}, fmt.Errorf("uuid service returned no identifiers")
	}
	return ports.Identifiers{
		UUID:     resp[0].UUID,
		SenNetID: resp[0].SenNetID,
		BaseID:   resp[0].BaseID,
	}, nil
}

// Resolve maps any public identifier to the full tuple using the service
// account token, since anonymous reads also resolve ids.
func (s *IDService) Resolve(ctx context.Context, id string) (ports.Identifiers, error) {
	var resp wireIdentifiers
	err := s.client.Request(ctx, "GET", "/uuid/"+id, "", nil, &resp)
	if IsNotFound(err) {
		return ports.Identifiers{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Identifiers{}, err
	}
	return ports.Identifiers{
		UUID:     resp.UUID,
		SenNetID: resp.SenNetID,
		BaseID:   resp.BaseID,
	}, nil
}
