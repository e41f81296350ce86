// README: Public catalogue reads for client UIs.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/tariff"
)

type CatalogueHandler struct {
	catalogue *tariff.Store
}

func NewCatalogueHandler(catalogue *tariff.Store) *CatalogueHandler {
	return &CatalogueHandler{catalogue: catalogue}
}

func (h *CatalogueHandler) Tariffs(c *gin.Context) {
	tariffs, err := h.catalogue.Tariffs(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(tariffs))
	for _, t := range tariffs {
		out = append(out, gin.H{"id": t.ID, "name": t.Name, "price": t.Price.String()})
	}
	c.JSON(http.StatusOK, gin.H{"tariffs": out})
}

func (h *CatalogueHandler) EtaOptions(c *gin.Context) {
	options, err := h.catalogue.EtaOptions(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(options))
	for _, o := range options {
		out = append(out, gin.H{"id": o.ID, "label": o.Label, "minutes": o.Minutes})
	}
	c.JSON(http.StatusOK, gin.H{"eta_options": out})
}

func (h *CatalogueHandler) CancelReasons(c *gin.Context) {
	audience := tariff.Audience(c.DefaultQuery("audience", string(tariff.AudiencePassenger)))
	if audience != tariff.AudiencePassenger && audience != tariff.AudienceDriver {
		writeError(c, http.StatusBadRequest, "invalid audience")
		return
	}
	reasons, err := h.catalogue.CancelReasons(c.Request.Context(), audience)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]gin.H, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, gin.H{"id": r.ID, "text": r.Text})
	}
	c.JSON(http.StatusOK, gin.H{"reasons": out})
}
