package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xtruel/roma-map-revamp/internal/platform/httpx"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

// catalogHandlers exposes CRUD for one admin-editable collection.
type catalogHandlers[T any] struct {
	resource string
	catalog  services.Catalog[T]
}

// mountCatalog registers list, get, create, patch and delete routes under /{name}.
func mountCatalog[T any](r chi.Router, name, resource string, catalog services.Catalog[T]) {
	if catalog == nil {
		return
	}
	h := &catalogHandlers[T]{resource: resource, catalog: catalog}
	r.Get("/"+name, h.list)
	r.Post("/"+name, h.create)
	r.Get("/"+name+"/{id}", h.get)
	r.Patch("/"+name+"/{id}", h.update)
	r.Delete("/"+name+"/{id}", h.delete)
}

func (h *catalogHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items := h.catalog.List(ctx)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"status": h.catalog.Status(),
	})
}

func (h *catalogHandlers[T]) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err, h.resource)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *catalogHandlers[T]) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var item T
	if err := httpx.DecodeJSON(w, r, &item, maxRequestBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	created, err := h.catalog.Create(ctx, item)
	if err != nil {
		writeServiceError(ctx, w, err, h.resource)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *catalogHandlers[T]) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var patch services.Patch
	if err := httpx.DecodeJSON(w, r, &patch, maxRequestBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if len(patch) == 0 {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "patch must change at least one field"))
		return
	}
	updated, err := h.catalog.Update(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(ctx, w, err, h.resource)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *catalogHandlers[T]) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		writeServiceError(ctx, w, err, h.resource)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
