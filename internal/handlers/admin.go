package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/platform/auth"
	"github.com/xtruel/roma-map-revamp/internal/platform/httpx"
	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
	"github.com/xtruel/roma-map-revamp/internal/platform/storage"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

const multipartOverhead = 1 << 20

// AdminDeps groups the services behind the back-office endpoints.
type AdminDeps struct {
	Authenticator *auth.Authenticator
	// Issuer handles POST /login. It is nil when tokens come from Firebase Authentication.
	Issuer *auth.LocalIssuer

	Matches  services.MatchService
	Packages services.PackageService
	Articles services.ArticleService
	Places   services.PlaceService
	Sponsors services.SponsorService
	Orders   services.OrderService
	Feedback services.FeedbackService
	Images   *storage.ImageStore
}

// AdminHandlers serves the back-office API.
type AdminHandlers struct {
	deps   AdminDeps
	synced map[string]services.Synced
}

// NewAdminHandlers constructs back-office handlers.
func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	h := &AdminHandlers{deps: deps, synced: make(map[string]services.Synced)}
	add := func(name string, s services.Synced) {
		if s != nil {
			h.synced[name] = s
		}
	}
	add(services.CollectionMatches, deps.Matches)
	add(services.CollectionPackages, deps.Packages)
	add(services.CollectionArticles, deps.Articles)
	add(services.CollectionPlaces, deps.Places)
	add("sponsors", deps.Sponsors)
	add(services.CollectionOrders, deps.Orders)
	return h
}

// Routes registers back-office endpoints. Everything except login requires an admin or editor
// token; resets require admin.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login)

	r.Group(func(ar chi.Router) {
		if h.deps.Authenticator != nil {
			ar.Use(h.deps.Authenticator.RequireRole(auth.RoleAdmin, auth.RoleEditor))
		} else {
			ar.Use(denyAll)
		}
		ar.Get("/me", h.me)
		ar.Get("/status", h.status)

		mountCatalog[domain.Match](ar, services.CollectionMatches, "match", h.deps.Matches)
		mountCatalog[domain.PackageItem](ar, services.CollectionPackages, "package", h.deps.Packages)
		mountCatalog[domain.Article](ar, services.CollectionArticles, "article", h.deps.Articles)
		mountCatalog[domain.Place](ar, services.CollectionPlaces, "place", h.deps.Places)

		for name := range h.synced {
			ar.Post("/"+name+":refresh", h.refresh(name))
		}

		ar.Get("/sponsors", h.listSponsors)
		ar.Put("/sponsors/{placeId}", h.saveSponsor)

		ar.Get("/orders", h.listOrders)
		ar.Get("/orders/summary", h.orderSummary)
		ar.Get("/orders/{orderId}", h.getOrder)
		ar.Patch("/orders/{orderId}", h.updateOrder)
		ar.Delete("/orders/{orderId}", h.deleteOrder)

		ar.Post("/uploads", h.upload)
		ar.Delete("/uploads", h.deleteUpload)

		ar.Group(func(adm chi.Router) {
			if h.deps.Authenticator != nil {
				adm.Use(h.deps.Authenticator.RequireRole(auth.RoleAdmin))
			}
			for name := range h.synced {
				adm.Post("/"+name+":reset", h.reset(name))
			}
		})
	})
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AdminHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Issuer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("login_disabled", "sign in with Firebase Authentication", http.StatusNotFound))
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req, 16*1024); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	session, err := h.deps.Issuer.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
			return
		}
		writeServiceError(ctx, w, err, "session")
		return
	}
	requestctx.Logger(ctx).Info("admin login", zap.String("email", session.Identity.Email))
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (h *AdminHandlers) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, identity)
}

// Statuses lists the state of every mounted collection, feedback threads included, sorted by name.
func (h *AdminHandlers) Statuses() []services.CollectionStatus {
	out := make([]services.CollectionStatus, 0, len(h.synced))
	for _, s := range h.synced {
		out = append(out, s.Status())
	}
	if h.deps.Feedback != nil {
		out = append(out, h.deps.Feedback.Threads()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *AdminHandlers) status(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"collections": h.Statuses()}
	if h.deps.Images != nil {
		payload["uploads"] = map[string]any{
			"remote":   h.deps.Images.Remote(),
			"maxBytes": h.deps.Images.MaxBytes(),
		}
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *AdminHandlers) refresh(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		coll := h.synced[name]
		if err := coll.Refresh(ctx); err != nil {
			writeServiceError(ctx, w, err, name)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, coll.Status())
	}
}

func (h *AdminHandlers) reset(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		coll := h.synced[name]
		report, err := coll.Reset(ctx)
		if err != nil {
			writeServiceError(ctx, w, err, name)
			return
		}
		requestctx.Logger(ctx).Warn("collection reset", zap.String("collection", name), zap.String("outcome", string(report.Outcome)))
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"seed": report, "status": coll.Status()})
	}
}

func (h *AdminHandlers) listSponsors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Sponsors == nil {
		writeUnavailable(ctx, w, "sponsor")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.deps.Sponsors.Restaurants(ctx)})
}

func (h *AdminHandlers) saveSponsor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Sponsors == nil {
		writeUnavailable(ctx, w, "sponsor")
		return
	}
	var update services.SponsorUpdate
	if err := httpx.DecodeJSON(w, r, &update, maxRequestBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	restaurant, err := h.deps.Sponsors.Save(ctx, chi.URLParam(r, "placeId"), update)
	if err != nil {
		writeServiceError(ctx, w, err, "restaurant")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, restaurant)
}

func (h *AdminHandlers) orders(ctx context.Context, w http.ResponseWriter) (services.OrderService, bool) {
	if h.deps.Orders == nil {
		writeUnavailable(ctx, w, "order")
		return nil, false
	}
	return h.deps.Orders, true
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, ok := h.orders(ctx, w)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := services.OrderFilter{Query: q.Get("q")}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "all" {
		status, valid := domain.ParseOrderStatus(raw)
		if !valid {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_status", "status must be confirmed, pending or cancelled"))
			return
		}
		filter.Status = status
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": orders.List(ctx, filter)})
}

func (h *AdminHandlers) orderSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, ok := h.orders(ctx, w)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders.Summary(ctx))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, ok := h.orders(ctx, w)
	if !ok {
		return
	}
	order, err := orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, ok := h.orders(ctx, w)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := httpx.DecodeJSON(w, r, &req, 4*1024); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	order, err := orders.UpdateStatus(ctx, chi.URLParam(r, "orderId"), domain.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, ok := h.orders(ctx, w)
	if !ok {
		return
	}
	if err := orders.Delete(ctx, chi.URLParam(r, "orderId")); err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Images == nil {
		writeUnavailable(ctx, w, "upload")
		return
	}
	limit := h.deps.Images.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeUploadError(ctx, w, storage.ErrTooLarge)
			return
		}
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "expected a multipart form with a file field"))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	folder, err := storage.ParseFolder(r.FormValue("folder"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_folder", err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "failed to read uploaded file"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	result, err := h.deps.Images.Upload(ctx, folder, storage.Image{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeUploadError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *AdminHandlers) deleteUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Images == nil {
		writeUnavailable(ctx, w, "upload")
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "path is required"))
		return
	}
	if err := h.deps.Images.Delete(ctx, path); err != nil {
		writeUploadError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotImage):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_media_type", "file must be an image", http.StatusUnsupportedMediaType))
	case errors.Is(err, storage.ErrTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image exceeds the upload limit", http.StatusRequestEntityTooLarge))
	case errors.Is(err, storage.ErrEmpty):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "image is empty"))
	default:
		writeServiceError(ctx, w, err, "upload")
	}
}
