package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/labworks/platform/pkg/catalog"
	"github.com/labworks/platform/pkg/common/httpapi"
)

// CatalogHandler exposes the read-only test-type catalog.
type CatalogHandler struct {
	catalog catalog.Catalog
}

func NewCatalogHandler(cat catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: cat}
}

func (h *CatalogHandler) Register(r *mux.Router) {
	r.HandleFunc("/catalog/test-types", h.handleListTestTypes).Methods(http.MethodGet)
}

func (h *CatalogHandler) handleListTestTypes(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"test_types": h.catalog.TestTypes})
}
