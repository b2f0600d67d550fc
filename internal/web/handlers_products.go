package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/web/middleware"
)

type productRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (p *productRequest) params() store.UpsertProductParams {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return store.UpsertProductParams{
		SKU:         strings.TrimSpace(p.SKU),
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		Active:      active,
	}
}

type productListResponse struct {
	Products []store.Product `json:"products"`
	Total    int64           `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListProductsParams{
		Search: q.Get("search"),
		SKU:    q.Get("sku"),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if v := q.Get("active"); v != "" {
		active := v == "true"
		params.Active = &active
	}
	if params.Limit < 1 || params.Limit > 500 {
		params.Limit = 50
	}

	products, total, err := s.products.List(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	writeJSON(w, http.StatusOK, productListResponse{
		Products: products,
		Total:    total,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params := req.params()
	if params.SKU == "" || params.Name == "" {
		writeError(w, http.StatusBadRequest, "sku and name are required")
		return
	}

	owner := middleware.UserID(r.Context())
	product, err := s.products.Create(r.Context(), owner, params)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.events.Dispatch(r.Context(), owner, store.EventProductCreated, product)
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := s.products.GetByID(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params := req.params()
	if params.SKU == "" || params.Name == "" {
		writeError(w, http.StatusBadRequest, "sku and name are required")
		return
	}

	owner := middleware.UserID(r.Context())
	product, err := s.products.Update(r.Context(), owner, id, params)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.events.Dispatch(r.Context(), owner, store.EventProductUpdated, product)
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	owner := middleware.UserID(r.Context())
	product, err := s.products.Delete(r.Context(), owner, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.events.Dispatch(r.Context(), owner, store.EventProductDeleted, product)
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "product": product})
}

func (s *Server) handleDeleteAllProducts(w http.ResponseWriter, r *http.Request) {
	count, err := s.products.DeleteAll(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": count})
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
