// README: Passenger-facing handlers: place, cancel, and rate trips.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/stats"
	"taxihub/internal/modules/trip"
)

type PassengerHandler struct {
	trips *trip.Engine
	stats *stats.Store
}

func NewPassengerHandler(trips *trip.Engine, stats *stats.Store) *PassengerHandler {
	return &PassengerHandler{trips: trips, stats: stats}
}

type createTripReq struct {
	PassengerID int64  `json:"passenger_id"`
	Pickup      string `json:"pickup"`
	Dropoff     string `json:"dropoff"`
	Comment     string `json:"comment"`
}

// Create opens the trip and immediately broadcasts it to available drivers.
// A broadcast that reaches nobody still leaves the trip open; the response
// says so and the sweeper handles the rest.
func (h *PassengerHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Create(c.Request.Context(), trip.CreateCommand{
		PassengerID: req.PassengerID,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		Comment:     req.Comment,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}

	resp := gin.H{"trip_id": t.ID, "status": t.Status}
	if err := h.trips.Broadcast(c.Request.Context(), t.ID); err != nil {
		if !errors.Is(err, trip.ErrNoDrivers) {
			writeTripError(c, err)
			return
		}
		resp["drivers_notified"] = false
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *PassengerHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.trips.Get(c.Request.Context(), id)
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trip_id": t.ID, "status": t.Status,
		"pickup": t.Pickup, "dropoff": t.Dropoff,
	})
}

type cancelReq struct {
	PassengerID int64  `json:"passenger_id"`
	Reason      string `json:"reason"`
}

func (h *PassengerHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.trips.Cancel(c.Request.Context(), trip.CancelCommand{
		TripID:  id,
		ActorID: req.PassengerID,
		Actor:   trip.ActorPassenger,
		Reason:  req.Reason,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusCancelledByPassenger})
}

type rateReq struct {
	PassengerID int64 `json:"passenger_id"`
	Score       int   `json:"score"`
}

func (h *PassengerHandler) Rate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.trips.Rate(c.Request.Context(), id, req.PassengerID, req.Score); err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rated": true})
}

func (h *PassengerHandler) Stats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	st, err := h.stats.Passenger(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed_trips": st.CompletedTrips})
}
