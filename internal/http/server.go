// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taxihub/internal/auth"
	"taxihub/internal/http/handlers"
	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/ban"
	"taxihub/internal/modules/stats"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/trip"
	"taxihub/internal/modules/user"
)

type ServerDeps struct {
	Trips         *trip.Engine
	Users         *user.Service
	Guard         *ban.Guard
	Catalogue     *tariff.Store
	Stats         *stats.Store
	Tokens        *auth.Manager
	AdminPassword string
	Log           *zap.Logger
}

func NewRouter(deps ServerDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	userHandler := handlers.NewUserHandler(deps.Users, deps.Guard)
	r.POST("/api/users", userHandler.Register)
	r.GET("/api/users/:id", userHandler.Get)

	catalogueHandler := handlers.NewCatalogueHandler(deps.Catalogue)
	r.GET("/api/tariffs", catalogueHandler.Tariffs)
	r.GET("/api/eta_options", catalogueHandler.EtaOptions)
	r.GET("/api/cancel_reasons", catalogueHandler.CancelReasons)

	passengerHandler := handlers.NewPassengerHandler(deps.Trips, deps.Stats)
	r.POST("/api/trips", passengerHandler.Create)
	r.GET("/api/trips/:id", passengerHandler.Get)
	r.POST("/api/trips/:id/cancel", passengerHandler.Cancel)
	r.POST("/api/trips/:id/rate", passengerHandler.Rate)
	r.GET("/api/passengers/:id/stats", passengerHandler.Stats)

	driverHandler := handlers.NewDriverHandler(deps.Trips, deps.Users, deps.Stats)
	r.POST("/api/trips/:id/accept", driverHandler.Accept)
	r.POST("/api/trips/:id/decline", driverHandler.Decline)
	r.POST("/api/trips/:id/fare", driverHandler.SetFare)
	r.POST("/api/trips/:id/eta", driverHandler.SetEta)
	r.POST("/api/trips/:id/arrived", driverHandler.Arrived)
	r.POST("/api/trips/:id/complete", driverHandler.Complete)
	r.POST("/api/trips/:id/driver_cancel", driverHandler.Cancel)
	r.PUT("/api/drivers/:id/availability", driverHandler.SetAvailability)
	r.GET("/api/drivers/:id/stats", driverHandler.Stats)

	adminHandler := handlers.NewAdminHandler(
		deps.Trips, deps.Users, deps.Guard, deps.Catalogue, deps.Stats,
		deps.Tokens, deps.AdminPassword)
	r.POST("/api/admin/login", adminHandler.Login)

	admin := r.Group("/api/admin", middleware.Auth(deps.Tokens))
	admin.GET("/overview", adminHandler.Overview)
	admin.GET("/trips", adminHandler.ListTrips)
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users/:id/promote", adminHandler.Promote)
	admin.POST("/users/:id/demote", adminHandler.Demote)
	admin.POST("/users/:id/ban", adminHandler.Ban)
	admin.POST("/users/:id/unban", adminHandler.Unban)
	admin.POST("/trips/:id/force_cancel", adminHandler.ForceCancel)
	admin.POST("/broadcast", adminHandler.Broadcast)
	admin.GET("/tariffs", adminHandler.ListTariffs)
	admin.POST("/tariffs", adminHandler.CreateTariff)
	admin.PUT("/tariffs/:id", adminHandler.UpdateTariff)
	admin.DELETE("/tariffs/:id", adminHandler.DeleteTariff)
	admin.POST("/cancel_reasons", adminHandler.CreateCancelReason)
	admin.DELETE("/cancel_reasons/:id", adminHandler.DeleteCancelReason)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
