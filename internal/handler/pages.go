package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/model"
	"github.com/sakif/pur-beurre/internal/service"
)

// PageHandler serves the product pages: home, product sheet, substitutes and
// favorites.
type PageHandler struct {
	products    *service.ProductService
	favorites   *service.FavoriteService
	render      *Renderer
	substitutes int
	logger      *slog.Logger
}

// NewPageHandler creates a PageHandler. substitutes is the number of
// products shown on a results page.
func NewPageHandler(
	products *service.ProductService,
	favorites *service.FavoriteService,
	render *Renderer,
	substitutes int,
	logger *slog.Logger,
) *PageHandler {
	return &PageHandler{
		products:    products,
		favorites:   favorites,
		render:      render,
		substitutes: substitutes,
		logger:      logger,
	}
}

// productID reads the {id} URL parameter. A malformed id cannot name a
// product, so callers answer 404.
func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// HandleIndex serves the home page.
//
// HTTP: GET /
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	data := newPage(r, "")
	count, err := h.products.Count(r.Context())
	if err != nil {
		// the count is decoration, the page still works without it
		h.logger.Warn("counting products", slog.String("error", err.Error()))
	}
	data.ProductCount = count
	h.render.Render(w, http.StatusOK, "index", data)
}

// HandleLegal serves the legal notice.
//
// HTTP: GET /legal/
func (h *PageHandler) HandleLegal(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, http.StatusOK, "legal", newPage(r, "Mentions légales"))
}

// HandleFood serves the product sheet.
//
// HTTP: GET /food/{id}
func (h *PageHandler) HandleFood(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.render.NotFound(w, r)
		return
	}

	detail, err := h.products.Detail(r.Context(), id)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	data := newPage(r, detail.Product.Name)
	data.Detail = detail
	data.Product = detail.Product
	h.render.Render(w, http.StatusOK, "food", data)
}

// HandleResults serves the substitutes of a product.
//
// HTTP: GET /results/{id} and, behind RequireAuth, GET /results_/{id}
//
// Signed-in users see which substitutes they already saved.
func (h *PageHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.render.NotFound(w, r)
		return
	}

	initial, subs, err := h.products.Substitutes(r.Context(), id, h.substitutes)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	saved := map[int64]bool{}
	userID, signedIn := auth.UserIDFromContext(r.Context())
	if signedIn {
		saved, err = h.favorites.IDs(r.Context(), userID)
		if err != nil {
			h.render.ServerError(w, r, err)
			return
		}
	}

	data := newPage(r, initial.Name)
	data.Product = initial
	data.Cards = cards(subs, saved, signedIn, initial.ID)
	h.render.Render(w, http.StatusOK, "results", data)
}

// HandleFavorites lists the signed-in user's saved products.
//
// HTTP: GET /favorites/ (RequireAuth)
func (h *PageHandler) HandleFavorites(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	products, err := h.favorites.List(r.Context(), userID)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	saved := make(map[int64]bool, len(products))
	for _, p := range products {
		saved[p.ID] = true
	}

	data := newPage(r, "Mes aliments")
	data.Cards = cards(products, saved, true, 0)
	h.render.Render(w, http.StatusOK, "favorites", data)
}

// HandleNotFound is the router's fallback.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render.NotFound(w, r)
}

func (h *PageHandler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		h.render.NotFound(w, r)
		return
	}
	h.render.ServerError(w, r, err)
}

func cards(products []model.Product, saved map[int64]bool, signedIn bool, initialID int64) []card {
	out := make([]card, len(products))
	for i, p := range products {
		out[i] = card{
			Product:       p,
			Saved:         saved[p.ID],
			Authenticated: signedIn,
			InitialID:     initialID,
		}
	}
	return out
}
