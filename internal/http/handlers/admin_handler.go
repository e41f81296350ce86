// README: Admin surface: login, user moderation, catalogue upkeep, overrides.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taxihub/internal/auth"
	"taxihub/internal/modules/ban"
	"taxihub/internal/modules/stats"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/trip"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

type AdminHandler struct {
	trips     *trip.Engine
	users     *user.Service
	guard     *ban.Guard
	catalogue *tariff.Store
	stats     *stats.Store
	tokens    *auth.Manager
	password  string
}

func NewAdminHandler(trips *trip.Engine, users *user.Service, guard *ban.Guard, catalogue *tariff.Store, stats *stats.Store, tokens *auth.Manager, password string) *AdminHandler {
	return &AdminHandler{
		trips: trips, users: users, guard: guard,
		catalogue: catalogue, stats: stats,
		tokens: tokens, password: password,
	}
}

type loginReq struct {
	Password string `json:"password"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Password != h.password {
		writeError(c, http.StatusUnauthorized, "wrong password")
		return
	}
	token, err := h.tokens.Issue("admin")
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AdminHandler) Overview(c *gin.Context) {
	o, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_users":     o.TotalUsers,
		"total_drivers":   o.TotalDrivers,
		"active_drivers":  o.ActiveDrivers,
		"trips_today":     o.TripsToday,
		"completed_trips": o.CompletedTrips,
		"cancelled_trips": o.CancelledTrips,
		"revenue":         o.RevenueComplete.String(),
	})
}

func (h *AdminHandler) ListTrips(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	trips, err := h.trips.Recent(c.Request.Context(), limit)
	if err != nil {
		writeTripError(c, err)
		return
	}
	out := make([]gin.H, 0, len(trips))
	for _, t := range trips {
		row := gin.H{
			"trip_id": t.ID, "passenger_id": t.PassengerID, "status": t.Status,
			"pickup": t.Pickup, "dropoff": t.Dropoff, "created_at": t.CreatedAt,
		}
		if t.DriverID != nil {
			row["driver_id"] = *t.DriverID
		}
		if t.Fare != nil {
			row["fare"] = t.Fare.String()
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"trips": out})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	role := user.Role(c.DefaultQuery("role", string(user.RoleDriver)))
	users, err := h.users.List(c.Request.Context(), role)
	if err != nil {
		writeUserError(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id": u.ID, "username": u.Username, "first_name": u.FirstName,
			"available": u.Available,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type promoteReq struct {
	FullName      string `json:"full_name"`
	CarBrand      string `json:"car_brand"`
	CarModel      string `json:"car_model"`
	LicensePlate  string `json:"license_plate"`
	CarColor      string `json:"car_color"`
	PhoneNumber   string `json:"phone_number"`
	PaymentNumber string `json:"payment_number"`
	BankName      string `json:"bank_name"`
}

func (h *AdminHandler) Promote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req promoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.users.Promote(c.Request.Context(), id, user.DriverProfile{
		FullName:      req.FullName,
		CarBrand:      req.CarBrand,
		CarModel:      req.CarModel,
		LicensePlate:  req.LicensePlate,
		CarColor:      req.CarColor,
		PhoneNumber:   req.PhoneNumber,
		PaymentNumber: req.PaymentNumber,
		BankName:      req.BankName,
	})
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": user.RoleDriver})
}

func (h *AdminHandler) Demote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.users.Demote(c.Request.Context(), id); err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": user.RolePassenger})
}

type banReq struct {
	Reason string `json:"reason"`
	Days   int    `json:"days"` // 0 means permanent
}

func (h *AdminHandler) Ban(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req banReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var until *time.Time
	if req.Days > 0 {
		u := time.Now().AddDate(0, 0, req.Days)
		until = &u
	}
	if err := h.guard.Ban(c.Request.Context(), id, req.Reason, until); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"banned": true, "banned_until": until})
}

func (h *AdminHandler) Unban(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.guard.Unban(c.Request.Context(), id); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"banned": false})
}

type forceCancelReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) ForceCancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req forceCancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.trips.ForceCancel(c.Request.Context(), id, req.Reason); err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": trip.StatusCancelled})
}

type broadcastReq struct {
	Text  string      `json:"text"`
	Roles []user.Role `json:"roles"`
}

func (h *AdminHandler) Broadcast(c *gin.Context) {
	var req broadcastReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sent, err := h.trips.BroadcastSystemMessage(c.Request.Context(), req.Text, req.Roles...)
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

func (h *AdminHandler) ListTariffs(c *gin.Context) {
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

type tariffReq struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (h *AdminHandler) CreateTariff(c *gin.Context) {
	var req tariffReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Price <= 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := h.catalogue.CreateTariff(c.Request.Context(), req.Name, types.FromFloat(req.Price))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *AdminHandler) UpdateTariff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req tariffReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Price <= 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.catalogue.UpdateTariff(c.Request.Context(), id, req.Name, types.FromFloat(req.Price))
	if err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *AdminHandler) DeleteTariff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogue.DeleteTariff(c.Request.Context(), id); err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type cancelReasonReq struct {
	Audience tariff.Audience `json:"audience"`
	Text     string          `json:"text"`
}

func (h *AdminHandler) CreateCancelReason(c *gin.Context) {
	var req cancelReasonReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Audience != tariff.AudiencePassenger && req.Audience != tariff.AudienceDriver {
		writeError(c, http.StatusBadRequest, "invalid audience")
		return
	}
	id, err := h.catalogue.CreateCancelReason(c.Request.Context(), req.Audience, req.Text)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *AdminHandler) DeleteCancelReason(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalogue.DeleteCancelReason(c.Request.Context(), id); err != nil {
		writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
