package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/service"
)

// AjaxHandler serves the JSON endpoints called by the site's scripts.
//
// The POST endpoints answer {} to any other method: the scripts only POST,
// and an empty object is what they have always received otherwise.
type AjaxHandler struct {
	products  *service.ProductService
	favorites *service.FavoriteService
	logger    *slog.Logger
}

func NewAjaxHandler(products *service.ProductService, favorites *service.FavoriteService, logger *slog.Logger) *AjaxHandler {
	return &AjaxHandler{products: products, favorites: favorites, logger: logger}
}

// ProductIDResponse is the answer of the find/save/unsave endpoints.
type ProductIDResponse struct {
	ProductID int64 `json:"product_id"`
}

// HandleFindProduct resolves the search box value to a product id.
//
// HTTP: POST /ajax_find_product
//
//	product_string=Nutella [code-barres : 3017620422003]
//	→ {"product_id": 12}
func (h *AjaxHandler) HandleFindProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	params, err := requestParams(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.products.FindByLabel(r.Context(), params.Get("product_string"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductIDResponse{ProductID: p.ID})
}

// HandleSaveProduct adds a product to the user's favorites.
//
// HTTP: POST /ajax_save_product (RequireAuthJSON)
func (h *AjaxHandler) HandleSaveProduct(w http.ResponseWriter, r *http.Request) {
	h.handleFavorite(w, r, h.favorites.Save)
}

// HandleUnsaveProduct removes a product from the user's favorites.
//
// HTTP: POST /ajax_unsave_product (RequireAuthJSON)
func (h *AjaxHandler) HandleUnsaveProduct(w http.ResponseWriter, r *http.Request) {
	h.handleFavorite(w, r, h.favorites.Unsave)
}

type favoriteAction func(ctx context.Context, userID string, productID int64) error

func (h *AjaxHandler) handleFavorite(w http.ResponseWriter, r *http.Request, action favoriteAction) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("valid authentication required"))
		return
	}

	params, err := requestParams(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	raw := params.Get("product_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("product_id", "invalid product id "+strconv.Quote(raw)))
		return
	}

	if err := action(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductIDResponse{ProductID: id})
}

// HandleProducts returns autocomplete labels.
//
// HTTP: GET /ajax_products?term=nutel[&limit=10]
//
//	→ ["Nutella [code-barres : 3017620422003]", ...]
//
// Without a term parameter it returns every label, which the search boxes
// load once to fill their list.
func (h *AjaxHandler) HandleProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		labels []string
		err    error
	)
	if query.Has("term") {
		limit, _ := strconv.Atoi(query.Get("limit"))
		labels, err = h.products.Suggest(r.Context(), query.Get("term"), limit)
	} else {
		labels, err = h.products.Labels(r.Context())
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}
