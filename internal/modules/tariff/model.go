// README: Static reference catalogues: tariffs, ETA options, cancellation reasons.
package tariff

import "taxihub/internal/types"

type Tariff struct {
	ID    int64
	Name  string
	Price types.Money
}

// EtaOption is one coarse arrival-time choice offered to the driver.
type EtaOption struct {
	ID      int64
	Label   string
	Minutes int
}

// Audience selects which party a cancellation reason is offered to.
type Audience string

const (
	AudiencePassenger Audience = "passenger"
	AudienceDriver    Audience = "driver"
)

// CancelReason is a UI convenience only; cancellations carry free text and
// are never validated against this catalogue.
type CancelReason struct {
	ID       int64
	Audience Audience
	Text     string
}
