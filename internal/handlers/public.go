package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/platform/auth"
	"github.com/xtruel/roma-map-revamp/internal/platform/httpx"
	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

// PublicDeps groups the services behind the visitor endpoints. Nil services answer 503.
type PublicDeps struct {
	Matches  services.MatchService
	Packages services.PackageService
	Articles services.ArticleService
	Places   services.PlaceService
	Sponsors services.SponsorService
	Feedback services.FeedbackService
	Orders   services.OrderService

	// CheckoutMiddlewares wrap POST /checkout, typically with idempotency.
	CheckoutMiddlewares []func(http.Handler) http.Handler
	// FeedbackMiddlewares wrap feedback writes, typically with optional authentication.
	FeedbackMiddlewares []func(http.Handler) http.Handler
}

// PublicHandlers serves the read-mostly visitor API.
type PublicHandlers struct {
	deps PublicDeps
}

// NewPublicHandlers constructs visitor handlers.
func NewPublicHandlers(deps PublicDeps) *PublicHandlers {
	return &PublicHandlers{deps: deps}
}

// Routes registers visitor endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/matches", h.listMatches)
	r.Get("/matches/next", h.nextMatch)
	r.Get("/packages", h.listPackages)
	r.Get("/packages/{packageId}", h.getPackage)
	r.Get("/articles", h.listArticles)
	r.Get("/articles/{slug}", h.getArticle)
	r.Get("/places", h.listPlaces)
	r.Get("/places/categories", h.placeCategories)
	r.Get("/restaurants", h.listRestaurants)

	r.Route("/feedback/{entityType}/{entityId}", func(fr chi.Router) {
		fr.Get("/", h.feedbackThread)
		fr.Group(func(wr chi.Router) {
			for _, mw := range h.deps.FeedbackMiddlewares {
				if mw != nil {
					wr.Use(mw)
				}
			}
			wr.Post("/", h.submitFeedback)
			wr.Post("/{feedbackId}:like", h.toggleLike)
		})
	})

	r.Group(func(cr chi.Router) {
		for _, mw := range h.deps.CheckoutMiddlewares {
			if mw != nil {
				cr.Use(mw)
			}
		}
		cr.Post("/checkout", h.checkout)
	})
	r.Post("/orders/{orderId}:confirm", h.confirmOrder)
}

func (h *PublicHandlers) listMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Matches == nil {
		writeUnavailable(ctx, w, "match")
		return
	}
	var items []domain.Match
	switch view := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view"))); view {
	case "", "all":
		items = h.deps.Matches.List(ctx)
	case "upcoming":
		items = h.deps.Matches.Upcoming(ctx)
	case "home":
		items = h.deps.Matches.Home(ctx)
	default:
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_view", "view must be all, upcoming or home"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) nextMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Matches == nil {
		writeUnavailable(ctx, w, "match")
		return
	}
	next, ok := h.deps.Matches.Next(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NotFound("no upcoming match"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, next)
}

func (h *PublicHandlers) listPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Packages == nil {
		writeUnavailable(ctx, w, "package")
		return
	}
	q := r.URL.Query()
	var items []domain.PackageItem
	switch {
	case q.Get("popular") != "":
		popular, err := strconv.ParseBool(q.Get("popular"))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_query", "popular must be a boolean"))
			return
		}
		if popular {
			items = h.deps.Packages.Popular(ctx)
		} else {
			items = h.deps.Packages.Active(ctx)
		}
	case q.Get("type") != "":
		items = h.deps.Packages.OfType(ctx, domain.PackageType(strings.ToLower(strings.TrimSpace(q.Get("type")))))
	default:
		items = h.deps.Packages.Active(ctx)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) getPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Packages == nil {
		writeUnavailable(ctx, w, "package")
		return
	}
	pkg, err := h.deps.Packages.Get(ctx, chi.URLParam(r, "packageId"))
	if err == nil && !pkg.Active {
		err = services.ErrNotFound
	}
	if err != nil {
		writeServiceError(ctx, w, err, "package")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pkg)
}

func (h *PublicHandlers) listArticles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Articles == nil {
		writeUnavailable(ctx, w, "article")
		return
	}
	q := r.URL.Query()
	var items []domain.Article
	if featured, _ := strconv.ParseBool(q.Get("featured")); featured {
		items = h.deps.Articles.Featured(ctx)
	} else {
		items = h.deps.Articles.Search(ctx, q.Get("category"), q.Get("q"))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) getArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Articles == nil {
		writeUnavailable(ctx, w, "article")
		return
	}
	view, err := h.deps.Articles.BySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(ctx, w, err, "article")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *PublicHandlers) listPlaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Places == nil {
		writeUnavailable(ctx, w, "place")
		return
	}
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category")))
	if category == "" || category == "all" {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.deps.Places.List(ctx)})
		return
	}
	if _, ok := domain.LookupCategory(domain.PlaceCategory(category)); !ok {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_category", "unknown place category"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.deps.Places.ByCategory(ctx, domain.PlaceCategory(category))})
}

func (h *PublicHandlers) placeCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Places == nil {
		writeUnavailable(ctx, w, "place")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": h.deps.Places.Categories(ctx)})
}

func (h *PublicHandlers) listRestaurants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Sponsors == nil {
		writeUnavailable(ctx, w, "restaurant")
		return
	}
	var items []domain.Restaurant
	if sponsored, _ := strconv.ParseBool(r.URL.Query().Get("sponsored")); sponsored {
		items = h.deps.Sponsors.Sponsors(ctx)
	} else {
		items = h.deps.Sponsors.Restaurants(ctx)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PublicHandlers) feedbackRef(w http.ResponseWriter, r *http.Request) (services.FeedbackRef, bool) {
	ctx := r.Context()
	if h.deps.Feedback == nil {
		writeUnavailable(ctx, w, "feedback")
		return services.FeedbackRef{}, false
	}
	ref, err := services.ParseFeedbackRef(chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		writeServiceError(ctx, w, err, "feedback")
		return services.FeedbackRef{}, false
	}
	return ref, true
}

func (h *PublicHandlers) feedbackThread(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.feedbackRef(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	thread, err := h.deps.Feedback.Thread(ctx, ref)
	if err != nil {
		writeServiceError(ctx, w, err, "feedback")
		return
	}
	visitor := requestctx.VisitorID(ctx)
	liked := make([]string, 0)
	for _, item := range thread.Items {
		if visitor != "" && item.HasLiked(visitor) {
			liked = append(liked, item.ID)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":   thread.Items,
		"summary": thread.Summary,
		"liked":   liked,
	})
}

type submitFeedbackRequest struct {
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *PublicHandlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.feedbackRef(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var req submitFeedbackRequest
	if err := httpx.DecodeJSON(w, r, &req, maxRequestBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	cmd := services.SubmitFeedbackCommand{
		Name:    req.Name,
		Avatar:  req.Avatar,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.Authenticated = true
		cmd.AuthorName = identity.Name
		if cmd.AuthorName == "" {
			cmd.AuthorName = identity.Email
		}
	}
	item, err := h.deps.Feedback.Submit(ctx, ref, cmd)
	if err != nil {
		writeServiceError(ctx, w, err, "feedback")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *PublicHandlers) toggleLike(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.feedbackRef(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	visitor := requestctx.VisitorID(ctx)
	if visitor == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("visitor_required", "visitor id is required to like feedback"))
		return
	}
	item, err := h.deps.Feedback.ToggleLike(ctx, ref, chi.URLParam(r, "feedbackId"), visitor)
	if err != nil {
		writeServiceError(ctx, w, err, "feedback")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"item":  item,
		"liked": item.HasLiked(visitor),
	})
}

type checkoutRequest struct {
	PackageID string          `json:"packageId"`
	Quantity  int             `json:"quantity"`
	Customer  domain.Customer `json:"customer"`
	Provider  string          `json:"provider"`
}

func (h *PublicHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Orders == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	var req checkoutRequest
	if err := httpx.DecodeJSON(w, r, &req, maxRequestBody); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.PackageID) == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_input", "packageId is required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	result, err := h.deps.Orders.Checkout(ctx, services.CheckoutCommand{
		PackageID:      strings.TrimSpace(req.PackageID),
		Quantity:       req.Quantity,
		Customer:       req.Customer,
		Provider:       req.Provider,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeServiceError(ctx, w, err, "checkout")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *PublicHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	order, err := h.deps.Orders.ConfirmPayment(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":     order.ID,
		"number": order.Number,
		"status": order.Status,
		"total":  order.Total,
	})
}
