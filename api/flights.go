package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/internal/amadeus"
	"github.com/travoya/travoya/internal/service/search"
)

type SearchHandler struct {
	service search.SearchUseCase
}

func NewSearchHandler(service search.SearchUseCase) *SearchHandler {
	return &SearchHandler{service: service}
}

func (h *SearchHandler) Register(router *gin.RouterGroup) {
	router.GET("/flights", h.flights)
	router.POST("/flights/price", h.priceFlight)
	router.GET("/hotels", h.hotels)
	router.GET("/transfers", h.transfers)
	router.GET("/locations", h.locations)
}

func (h *SearchHandler) flights(c *gin.Context) {
	adults, _ := strconv.Atoi(c.DefaultQuery("adults", "1"))
	maxOffers, _ := strconv.Atoi(c.DefaultQuery("max", "0"))

	offers, err := h.service.SearchFlights(c.Request.Context(), amadeus.FlightSearchQuery{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		Date:        c.Query("date"),
		ReturnDate:  c.Query("return_date"),
		Adults:      adults,
		Currency:    c.Query("currency"),
		Max:         maxOffers,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "flight offers retrieved", offers)
}

type priceFlightRequest struct {
	FlightOffer json.RawMessage `json:"flight_offer" binding:"required"`
}

func (h *SearchHandler) priceFlight(c *gin.Context) {
	var req priceFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Message: "invalid pricing payload", Error: err.Error()})
		return
	}

	priced, err := h.service.PriceFlight(c.Request.Context(), req.FlightOffer)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "flight offer priced", priced)
}

func (h *SearchHandler) hotels(c *gin.Context) {
	adults, _ := strconv.Atoi(c.DefaultQuery("adults", "1"))

	offers, err := h.service.SearchHotels(c.Request.Context(), amadeus.HotelSearchQuery{
		CityCode:     c.Query("city_code"),
		CheckInDate:  c.Query("check_in"),
		CheckOutDate: c.Query("check_out"),
		Adults:       adults,
		Currency:     c.Query("currency"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "hotel offers retrieved", offers)
}

func (h *SearchHandler) transfers(c *gin.Context) {
	passengers, _ := strconv.Atoi(c.DefaultQuery("passengers", "1"))

	offers, err := h.service.SearchTransfers(c.Request.Context(), amadeus.TransferQuery{
		StartLocationCode: c.Query("start_location"),
		EndAddressLine:    c.Query("end_address"),
		StartDateTime:     c.Query("start_time"),
		Passengers:        passengers,
		Currency:          c.Query("currency"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "transfer offers retrieved", offers)
}

func (h *SearchHandler) locations(c *gin.Context) {
	locations, err := h.service.Locations(c.Request.Context(), c.Query("keyword"), c.Query("sub_type"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "locations retrieved", locations)
}
