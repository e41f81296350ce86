// README: Text and keyboard builders for every trip surface. Callback data is
// "<verb>:<trip_id>[:<arg>]" and is parsed back in the HTTP layer.
package trip

import (
	"fmt"
	"strings"

	"taxihub/internal/gateway"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

const (
	CallbackAccept   = "accept"
	CallbackDecline  = "decline"
	CallbackTariff   = "tariff"
	CallbackEta      = "eta"
	CallbackArrived  = "arrived"
	CallbackComplete = "complete"
	CallbackCancel   = "cancel"
	CallbackRate     = "rate"
)

func callbackData(verb string, tripID int64, args ...string) string {
	data := fmt.Sprintf("%s:%d", verb, tripID)
	if len(args) > 0 {
		data += ":" + strings.Join(args, ":")
	}
	return data
}

func routeText(t *Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\nTo: %s", t.Pickup, t.Dropoff)
	if t.Comment != nil && *t.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", *t.Comment)
	}
	return b.String()
}

func passengerCardText(t *Trip) string {
	return fmt.Sprintf("Order #%d placed.\n%s\n\nLooking for a driver...", t.ID, routeText(t))
}

func passengerCardKeyboard(tripID int64) gateway.Keyboard {
	return gateway.Keyboard{
		gateway.Row(gateway.Button{Text: "Cancel order", Data: callbackData(CallbackCancel, tripID)}),
	}
}

func offerText(t *Trip, p *user.User) string {
	name := p.FirstName
	if name == "" {
		name = p.Username
	}
	return fmt.Sprintf("New order #%d from %s\n%s", t.ID, name, routeText(t))
}

func offerKeyboard(tripID int64) gateway.Keyboard {
	return gateway.Keyboard{
		gateway.Row(
			gateway.Button{Text: "Accept", Data: callbackData(CallbackAccept, tripID)},
			gateway.Button{Text: "Decline", Data: callbackData(CallbackDecline, tripID)},
		),
	}
}

func driverCardText(t *Trip) string {
	return fmt.Sprintf("Order #%d is yours.\n%s", t.ID, routeText(t))
}

func driverInfoText(d *user.User, avg float64, ratings int) string {
	p := d.Profile
	if p == nil {
		return "Driver found."
	}
	text := fmt.Sprintf(
		"Your driver: %s\nCar: %s, %s\nPlate: %s\nPhone: %s",
		p.FullName, p.CarInfo(), p.CarColor, p.LicensePlate, p.PhoneNumber,
	)
	if ratings > 0 {
		text += fmt.Sprintf("\nRating: %.1f ★ (%d trips)", avg, ratings)
	}
	return text
}

func noDriversText() string {
	return "No drivers are available right now. Your order stays open; we will keep looking."
}

func ratingReceivedText(score int, avg float64, count int) string {
	return fmt.Sprintf("You received a %d ★ rating. Your average is now %.1f over %d ratings.",
		score, avg, count)
}

func tariffPromptText(tripID int64) string {
	return fmt.Sprintf("Order #%d: choose the tariff.", tripID)
}

func tariffPromptKeyboard(tripID int64, tariffs []tariff.Tariff) gateway.Keyboard {
	var kb gateway.Keyboard
	for _, tr := range tariffs {
		kb = append(kb, gateway.Row(gateway.Button{
			Text: fmt.Sprintf("%s — %s", tr.Name, tr.Price),
			Data: callbackData(CallbackTariff, tripID, fmt.Sprint(tr.ID)),
		}))
	}
	return kb
}

func passengerFareText(fare types.Money, p *user.DriverProfile) string {
	text := fmt.Sprintf("Ride price: %s.", fare)
	if p != nil && p.PaymentNumber != "" {
		text += fmt.Sprintf("\nPayment: %s (%s)", p.PaymentNumber, p.BankName)
	}
	return text
}

func driverFareText(fare types.Money) string {
	return fmt.Sprintf("Price set: %s.", fare)
}

func etaPromptText(tripID int64) string {
	return fmt.Sprintf("Order #%d: how soon will you arrive?", tripID)
}

func etaPromptKeyboard(tripID int64, options []tariff.EtaOption) gateway.Keyboard {
	var row []gateway.Button
	var kb gateway.Keyboard
	for _, o := range options {
		row = append(row, gateway.Button{
			Text: o.Label,
			Data: callbackData(CallbackEta, tripID, fmt.Sprint(o.Minutes)),
		})
		if len(row) == 3 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

func passengerEtaText(minutes int) string {
	return fmt.Sprintf("The driver will arrive in about %d min.", minutes)
}

func driverEtaText(minutes int) string {
	return fmt.Sprintf("Arrival time sent: %d min.", minutes)
}

func driverControlText(t *Trip) string {
	return fmt.Sprintf("Order #%d in progress.\n%s", t.ID, routeText(t))
}

func driverControlKeyboard(tripID int64, status Status) gateway.Keyboard {
	if status == StatusAccepted {
		return gateway.Keyboard{
			gateway.Row(gateway.Button{Text: "I have arrived", Data: callbackData(CallbackArrived, tripID)}),
			gateway.Row(gateway.Button{Text: "Cancel order", Data: callbackData(CallbackCancel, tripID)}),
		}
	}
	return gateway.Keyboard{
		gateway.Row(gateway.Button{Text: "Complete ride", Data: callbackData(CallbackComplete, tripID)}),
		gateway.Row(gateway.Button{Text: "Cancel order", Data: callbackData(CallbackCancel, tripID)}),
	}
}

func passengerArrivalText() string {
	return "Your driver has arrived. Have a good ride!"
}

func completedPassengerText(t *Trip) string {
	text := fmt.Sprintf("Order #%d completed. Thank you for the ride!", t.ID)
	if t.Fare != nil {
		text += fmt.Sprintf("\nTotal: %s", *t.Fare)
	}
	return text
}

func completedDriverText(t *Trip) string {
	text := fmt.Sprintf("Order #%d completed.", t.ID)
	if t.Fare != nil {
		text += fmt.Sprintf("\nEarned: %s", *t.Fare)
	}
	return text
}

func ratingPromptText() string {
	return "Please rate your driver."
}

func ratingKeyboard(tripID int64) gateway.Keyboard {
	var row []gateway.Button
	for score := 1; score <= 5; score++ {
		row = append(row, gateway.Button{
			Text: strings.Repeat("★", score),
			Data: callbackData(CallbackRate, tripID, fmt.Sprint(score)),
		})
	}
	return gateway.Keyboard{row}
}

func expiredPassengerText(t *Trip) string {
	return fmt.Sprintf("Order #%d expired: no driver accepted it in time. Please try again.", t.ID)
}

func cancelConfirmedText(t *Trip) string {
	return fmt.Sprintf("Order #%d cancelled.", t.ID)
}

func cancelledText(t *Trip, by Actor) string {
	var who string
	switch by {
	case ActorPassenger:
		who = "the passenger"
	case ActorDriver:
		who = "the driver"
	default:
		who = "the administrator"
	}
	text := fmt.Sprintf("Order #%d was cancelled by %s.", t.ID, who)
	if t.CancelReason != nil && *t.CancelReason != "" {
		text += fmt.Sprintf("\nReason: %s", *t.CancelReason)
	}
	return text
}
