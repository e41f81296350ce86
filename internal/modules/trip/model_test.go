package trip

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusExpired, true},
		{StatusRequested, StatusCancelledByPassenger, true},
		{StatusRequested, StatusCancelledByDriver, false},
		{StatusRequested, StatusInProgress, false},
		{StatusRequested, StatusCompleted, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelledByDriver, true},
		{StatusAccepted, StatusExpired, false},
		{StatusAccepted, StatusCompleted, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusExpired, StatusAccepted, false},
		{StatusCancelled, StatusRequested, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []Status{
		StatusCompleted, StatusExpired, StatusCancelled,
		StatusCancelledByPassenger, StatusCancelledByDriver,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []Status{StatusRequested, StatusAccepted, StatusInProgress}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
