// README: Driver-facing handlers: the accept race and the ride flow.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/stats"
	"taxihub/internal/modules/trip"
	"taxihub/internal/modules/user"
)

type DriverHandler struct {
	trips *trip.Engine
	users *user.Service
	stats *stats.Store
}

func NewDriverHandler(trips *trip.Engine, users *user.Service, stats *stats.Store) *DriverHandler {
	return &DriverHandler{trips: trips, users: users, stats: stats}
}

type driverActionReq struct {
	DriverID int64 `json:"driver_id"`
}

func (h *DriverHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.trips.Accept(c.Request.Context(), trip.AcceptCommand{TripID: id, DriverID: req.DriverID})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusAccepted})
}

func (h *DriverHandler) Decline(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.trips.DeclineOffer(c.Request.Context(), id, req.DriverID); err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"declined": true})
}

type fareReq struct {
	DriverID int64 `json:"driver_id"`
	TariffID int64 `json:"tariff_id"`
}

func (h *DriverHandler) SetFare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req fareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.trips.SetFare(c.Request.Context(), trip.FareCommand{
		TripID: id, DriverID: req.DriverID, TariffID: req.TariffID,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fare_set": true})
}

type etaReq struct {
	DriverID int64 `json:"driver_id"`
	Minutes  int   `json:"minutes"`
}

func (h *DriverHandler) SetEta(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req etaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Minutes <= 0 {
		writeError(c, http.StatusBadRequest, "minutes must be positive")
		return
	}
	err := h.trips.SetEta(c.Request.Context(), trip.EtaCommand{
		TripID: id, DriverID: req.DriverID, Minutes: req.Minutes,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eta_sent": true})
}

func (h *DriverHandler) Arrived(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.trips.MarkArrived(c.Request.Context(), id, req.DriverID); err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusInProgress})
}

func (h *DriverHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.trips.Complete(c.Request.Context(), id, req.DriverID); err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusCompleted})
}

type driverCancelReq struct {
	DriverID int64  `json:"driver_id"`
	Reason   string `json:"reason"`
}

func (h *DriverHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req driverCancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.trips.Cancel(c.Request.Context(), trip.CancelCommand{
		TripID:  id,
		ActorID: req.DriverID,
		Actor:   trip.ActorDriver,
		Reason:  req.Reason,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusCancelledByDriver})
}

type availabilityReq struct {
	Available bool `json:"available"`
}

// SetAvailability is the driver's shift toggle. Only available drivers get
// offer broadcasts.
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.users.SetAvailability(c.Request.Context(), id, req.Available); err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": req.Available})
}

func (h *DriverHandler) Stats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	st, err := h.stats.Driver(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"completed_trips": st.CompletedTrips,
		"total_earnings":  st.TotalEarnings.String(),
		"average_rating":  st.AverageRating,
		"rating_count":    st.RatingCount,
	})
}
