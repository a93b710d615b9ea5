package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sennetconsortium/entity-api/app"
	"github.com/sennetconsortium/entity-api/core/trigger"
	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// Status reports service version and graph connectivity.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	neo4jUp := h.store.Ping(r.Context()) == nil
	status := http.StatusOK
	if !neo4jUp {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"version":          h.version,
		"neo4j_connection": neo4jUp,
	})
}

// EntityTypes lists the creatable entity types.
func (h *Handler) EntityTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.EntityTypes())
}

// CreateEntity handles POST /entities/{type}.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.Anonymous() {
		writeError(w, http.StatusUnauthorized, "a bearer token is required to create entities")
		return
	}

	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	entityType := chi.URLParam(r, "type")
	doc, err := h.service.CreateEntity(r.Context(), user, entityType, body)
	if err != nil {
		h.countValidationFailure(entityType, err)
		h.writeServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.EntityWrites.WithLabelValues(entityType, "create").Inc()
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetEntity handles GET /entities/{id}. A ?property= query returns just
// that property's value from the rendered document.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetEntity(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if prop := r.URL.Query().Get("property"); prop != "" {
		value, ok := doc[prop]
		if !ok {
			writeError(w, http.StatusBadRequest, "property "+prop+" is not present on this entity")
			return
		}
		writeJSON(w, http.StatusOK, value)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateEntity handles PUT /entities/{id}.
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.Anonymous() {
		writeError(w, http.StatusUnauthorized, "a bearer token is required to update entities")
		return
	}

	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	doc, err := h.service.UpdateEntity(r.Context(), user, chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if h.metrics != nil {
		entityType, _ := doc["entity_type"].(string)
		h.metrics.EntityWrites.WithLabelValues(entityType, "update").Inc()
	}
	writeJSON(w, http.StatusOK, doc)
}

// EntitiesByType handles GET /{type}/entities.
func (h *Handler) EntitiesByType(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.EntitiesByType(r.Context(), userFrom(r.Context()), chi.URLParam(r, "type"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.Ancestors)
}

func (h *Handler) Descendants(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.Descendants)
}

func (h *Handler) Parents(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.Parents)
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.Children)
}

func (h *Handler) PreviousRevisions(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.PreviousRevisions)
}

func (h *Handler) NextRevisions(w http.ResponseWriter, r *http.Request) {
	h.traversal(w, r, h.service.NextRevisions)
}

// LatestRevision handles GET /datasets/{id}/latest-revision.
func (h *Handler) LatestRevision(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.LatestRevision(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Provenance handles GET /entities/{id}/provenance. ?depth= bounds the
// traversal in generations.
func (h *Handler) Provenance(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = n
	}

	graph, err := h.service.Provenance(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), depth)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// Visibility handles GET /visibility/{id}.
func (h *Handler) Visibility(w http.ResponseWriter, r *http.Request) {
	visibility, err := h.service.Visibility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visibility)
}

// UserGroups handles GET /usergroups.
func (h *Handler) UserGroups(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.Anonymous() {
		writeError(w, http.StatusUnauthorized, "a bearer token is required")
		return
	}
	writeJSON(w, http.StatusOK, user.Groups)
}

// FlushCache handles DELETE /flush-cache/{id}.
func (h *Handler) FlushCache(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.Anonymous() {
		writeError(w, http.StatusUnauthorized, "a bearer token is required")
		return
	}
	if err := h.service.FlushEntity(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlushAllCache handles DELETE /flush-all-cache. Admin only.
func (h *Handler) FlushAllCache(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user.Anonymous() {
		writeError(w, http.StatusUnauthorized, "a bearer token is required")
		return
	}
	if !user.IsAdmin {
		writeError(w, http.StatusForbidden, "admin membership is required")
		return
	}
	h.service.FlushAll()
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (h *Handler) traversal(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, user *auth.User, id string) ([]map[string]any, error)) {
	docs, err := fn(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return body, true
}

func (h *Handler) countValidationFailure(entityType string, err error) {
	if h.metrics == nil {
		return
	}
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		h.metrics.ValidationFailures.WithLabelValues(entityType).Inc()
	}
}

// writeServiceError maps service errors to the HTTP taxonomy: validation
// and group resolution problems are the caller's fault, missing entities
// are 404, access denials 403, and anything else is a server fault.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":       http.StatusBadRequest,
				"message":    "request body failed validation",
				"violations": ve.Violations(),
			},
		})
		return
	}

	switch {
	case errors.Is(err, app.ErrUnsupportedType),
		errors.Is(err, app.ErrNoProviderGroup),
		errors.Is(err, app.ErrMultipleProviderGroups),
		errors.Is(err, app.ErrUnknownGroup):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	var te *trigger.ExecError
	if errors.As(err, &te) {
		if h.metrics != nil {
			h.metrics.TriggerFailures.WithLabelValues(te.Trigger).Inc()
		}
	}
	h.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
		},
	})
}
