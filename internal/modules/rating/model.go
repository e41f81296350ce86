// README: Trip ratings, one per completed trip.
package rating

import "time"

type Rating struct {
	ID          int64
	TripID      int64
	DriverID    int64
	PassengerID int64
	Score       int
	CreatedAt   time.Time
}
