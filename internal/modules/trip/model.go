// README: Trip aggregate, status definitions, and the message ledger vocabulary.
package trip

import (
	"time"

	"taxihub/internal/gateway"
	"taxihub/internal/types"
)

type Status string

const (
	StatusRequested            Status = "requested"
	StatusAccepted             Status = "accepted"
	StatusInProgress           Status = "in_progress"
	StatusCompleted            Status = "completed"
	StatusExpired              Status = "expired"
	StatusCancelledByPassenger Status = "cancelled_by_passenger"
	StatusCancelledByDriver    Status = "cancelled_by_driver"
	StatusCancelled            Status = "cancelled"
)

type Trip struct {
	ID           int64
	PassengerID  int64
	DriverID     *int64
	Status       Status
	Pickup       string
	Dropoff      string
	Comment      *string
	Fare         *types.Money
	CancelReason *string
	CreatedAt    time.Time
	AcceptedAt   *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
}

// AllowedTransitions represents the trip state flow (diagram) as code. All
// cancellation variants share the same reachable set.
var AllowedTransitions = map[Status][]Status{
	StatusRequested: {StatusAccepted, StatusExpired, StatusCancelledByPassenger, StatusCancelled},
	// Drivers may complete straight from accepted; announcing arrival is
	// optional.
	StatusAccepted: {
		StatusInProgress, StatusCompleted,
		StatusCancelledByPassenger, StatusCancelledByDriver, StatusCancelled,
	},
	StatusInProgress: {
		StatusCompleted, StatusCancelledByPassenger, StatusCancelledByDriver, StatusCancelled,
	},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the trip can never transition again. Terminal
// trips must hold no ledger rows.
func (s Status) Terminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// SurfaceRole names one UI message a live trip owns. Each role holds at most
// one handle per trip; re-tracking a role replaces the previous handle.
type SurfaceRole string

const (
	RolePassengerCard       SurfaceRole = "passenger_card"
	RolePassengerDriverInfo SurfaceRole = "passenger_driver_info"
	RolePassengerFare       SurfaceRole = "passenger_fare"
	RolePassengerEta        SurfaceRole = "passenger_eta"
	RolePassengerArrival    SurfaceRole = "passenger_arrival"
	RoleDriverCard          SurfaceRole = "driver_card"
	RoleDriverTariffPrompt  SurfaceRole = "driver_tariff_prompt"
	RoleDriverFare          SurfaceRole = "driver_fare"
	RoleDriverEtaPrompt     SurfaceRole = "driver_eta_prompt"
	RoleDriverEta           SurfaceRole = "driver_eta"
	RoleDriverControl       SurfaceRole = "driver_control"
)

// Surface is one ledger row: a role bound to a delivered message.
type Surface struct {
	TripID int64
	Role   SurfaceRole
	Handle gateway.Handle
}

// Offer is one broadcast message sitting in a driver's chat while the trip is
// still up for grabs.
type Offer struct {
	TripID   int64
	DriverID int64
	Handle   gateway.Handle
}

// Actor identifies which party initiated a cancellation.
type Actor string

const (
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
	ActorAdmin     Actor = "admin"
)
