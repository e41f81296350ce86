// README: User aggregate with the passenger/driver role tag.
package user

import "time"

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

// DriverProfile is only meaningful while the user carries the driver role.
// Demoting a driver back to passenger clears the whole profile.
type DriverProfile struct {
	FullName      string
	CarBrand      string
	CarModel      string
	LicensePlate  string
	CarColor      string
	PhoneNumber   string
	PaymentNumber string
	BankName      string
}

func (p DriverProfile) CarInfo() string {
	if p.CarBrand == "" {
		return p.CarModel
	}
	if p.CarModel == "" {
		return p.CarBrand
	}
	return p.CarBrand + " " + p.CarModel
}

type User struct {
	ID        int64 // external chat id, stable and unique
	Username  string
	FirstName string
	Role      Role
	// Available is the driver's opt-in toggle for receiving offers. Always
	// false for passengers.
	Available    bool
	Profile      *DriverProfile
	RegisteredAt time.Time
}
