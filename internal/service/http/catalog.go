package httpsvc

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.configs.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]configResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toConfigResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	entry, err := s.configs.Get(r.Context(), nil, chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigResponse(entry))
}

// handlePutConfig создаёт или заменяет параметр. status по умолчанию true.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req upsertConfigRequest
	if err := decodeJSON(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry := domain.ConfigEntry{
		Name:        strings.TrimSpace(chi.URLParam(r, "name")),
		Value:       req.Value,
		DataType:    domain.ConfigDataType(strings.ToLower(strings.TrimSpace(req.DataType))),
		Status:      true,
		Description: req.Description,
	}
	if req.Status != nil {
		entry.Status = *req.Status
	}
	if err := entry.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.configs.Upsert(r.Context(), entry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	requestLogger(r, s.logger).WithField("config", saved.Name).Info("config updated")
	writeJSON(w, http.StatusOK, toConfigResponse(saved))
}

func (s *Server) handleProductReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.catalog.ListReviewsByProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponses(reviews))
}

func (s *Server) handleCategoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListProductsByCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if err := s.catalog.DeleteProductAndDependents(r.Context(), productID); err != nil {
		s.writeError(w, r, err)
		return
	}
	requestLogger(r, s.logger).WithField("product_id", productID).Info("product deleted")
	w.WriteHeader(http.StatusNoContent)
}
