// README: Shared handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/ban"
	"taxihub/internal/modules/rating"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/trip"
	"taxihub/internal/modules/user"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func writeTripError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrBadRequest), errors.Is(err, trip.ErrUnknownTariff):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrBanned), errors.Is(err, trip.ErrNotParticipant),
		errors.Is(err, trip.ErrNotPassenger):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, trip.ErrInvalidState), errors.Is(err, trip.ErrActiveTrip),
		errors.Is(err, trip.ErrAlreadyTaken), errors.Is(err, rating.ErrAlreadyRated):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, trip.ErrNoDrivers):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, rating.ErrBadScore):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, user.ErrNotFound), errors.Is(err, ban.ErrNotFound),
		errors.Is(err, tariff.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, user.ErrNotDriver):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
