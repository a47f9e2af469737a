package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/repository"
)

// CatalogHandler serves the thin pass-through resources: the addon catalog,
// the margin setting, excluded airlines and the user's flight cart.
type CatalogHandler struct {
	addons  repository.AddonRepository
	carts   repository.CartRepository
	margins repository.MarginRepository
}

func NewCatalogHandler(addons repository.AddonRepository, carts repository.CartRepository, margins repository.MarginRepository) *CatalogHandler {
	return &CatalogHandler{addons: addons, carts: carts, margins: margins}
}

func (h *CatalogHandler) Register(router *gin.RouterGroup) {
	router.GET("/addons", h.listAddons)
}

// RegisterAdmin mounts the admin-only management routes.
func (h *CatalogHandler) RegisterAdmin(router *gin.RouterGroup) {
	router.POST("/addons", h.createAddon)
	router.PUT("/addons/:id", h.updateAddon)
	router.DELETE("/addons/:id", h.deleteAddon)
	router.GET("/margin", h.getMargin)
	router.PUT("/margin", h.putMargin)
	router.GET("/excluded-airlines", h.listExcluded)
	router.POST("/excluded-airlines", h.addExcluded)
	router.DELETE("/excluded-airlines/:code", h.removeExcluded)
}

// RegisterCart mounts the authenticated cart routes.
func (h *CatalogHandler) RegisterCart(router *gin.RouterGroup) {
	router.GET("/", h.listCart)
	router.POST("/", h.addToCart)
	router.DELETE("/", h.clearCart)
}

func (h *CatalogHandler) listAddons(c *gin.Context) {
	addons, err := h.addons.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "addons retrieved", addons)
}

type addonRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	PriceUSD    float64 `json:"price_usd" binding:"required"`
}

func (h *CatalogHandler) createAddon(c *gin.Context) {
	var req addonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid addon payload", Error: err.Error()})
		return
	}

	addon := &domain.FlightAddon{Name: req.Name, Description: req.Description, PriceUSD: req.PriceUSD}
	if err := h.addons.Create(c.Request.Context(), addon); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "addon created", addon)
}

func (h *CatalogHandler) updateAddon(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid addon id"})
		return
	}

	var req addonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid addon payload", Error: err.Error()})
		return
	}

	addon := &domain.FlightAddon{ID: id, Name: req.Name, Description: req.Description, PriceUSD: req.PriceUSD}
	if err := h.addons.Update(c.Request.Context(), addon); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "addon updated", addon)
}

func (h *CatalogHandler) deleteAddon(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid addon id"})
		return
	}
	if err := h.addons.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "addon deleted", nil)
}

func (h *CatalogHandler) getMargin(c *gin.Context) {
	margin, err := h.margins.GetCurrent(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if margin == nil {
		respond(c, http.StatusOK, "margin not configured", gin.H{"percent": 0})
		return
	}
	respond(c, http.StatusOK, "margin retrieved", margin)
}

type marginRequest struct {
	Percent float64 `json:"percent"`
}

func (h *CatalogHandler) putMargin(c *gin.Context) {
	var req marginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid margin payload", Error: err.Error()})
		return
	}
	if req.Percent < 0 {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "margin percent must not be negative"})
		return
	}

	margin, err := h.margins.Upsert(c.Request.Context(), req.Percent)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "margin updated", margin)
}

func (h *CatalogHandler) listExcluded(c *gin.Context) {
	airlines, err := h.margins.ListExcludedAirlines(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "excluded airlines retrieved", airlines)
}

type excludedRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *CatalogHandler) addExcluded(c *gin.Context) {
	var req excludedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid airline payload", Error: err.Error()})
		return
	}

	airline, err := h.margins.AddExcludedAirline(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "airline excluded", airline)
}

func (h *CatalogHandler) removeExcluded(c *gin.Context) {
	if err := h.margins.RemoveExcludedAirline(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "airline removed", nil)
}

type cartRequest struct {
	Offer json.RawMessage `json:"offer" binding:"required"`
}

func (h *CatalogHandler) addToCart(c *gin.Context) {
	userID := currentUserID(c)
	if userID == nil {
		c.JSON(http.StatusUnauthorized, envelope{Success: false, Message: "authentication required"})
		return
	}

	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid cart payload", Error: err.Error()})
		return
	}

	cart := &domain.FlightCart{UserID: *userID, Offer: req.Offer}
	if err := h.carts.Add(c.Request.Context(), cart); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "offer added to cart", cart)
}

func (h *CatalogHandler) listCart(c *gin.Context) {
	userID := currentUserID(c)
	if userID == nil {
		c.JSON(http.StatusUnauthorized, envelope{Success: false, Message: "authentication required"})
		return
	}

	carts, err := h.carts.ListByUser(c.Request.Context(), *userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart retrieved", carts)
}

func (h *CatalogHandler) clearCart(c *gin.Context) {
	userID := currentUserID(c)
	if userID == nil {
		c.JSON(http.StatusUnauthorized, envelope{Success: false, Message: "authentication required"})
		return
	}
	if err := h.carts.ClearByUser(c.Request.Context(), *userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart emptied", nil)
}
