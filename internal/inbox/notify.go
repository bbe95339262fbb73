package inbox

import (
	"sync"
	"time"

	"storefront/internal/model"
)

// alertBodyLength is how many runes of the message body an alert carries.
const alertBodyLength = 50

// Alert is a transient, dismissible notification shown to the user.
type Alert struct {
	ID     int
	Sender string
	Body   string
	At     time.Time
}

// AlertCenter collects alerts for inbound messages and connection trouble.
// It never sees self-authored messages; the store filters those before
// emitting.
type AlertCenter struct {
	mu      sync.Mutex
	nextID  int
	alerts  []Alert
	onAlert func(Alert)
}

// NewAlertCenter creates an empty alert center.
func NewAlertCenter() *AlertCenter {
	return &AlertCenter{nextID: 1}
}

// OnAlert registers a callback invoked for every new alert, e.g. to push
// it into a UI event loop.
func (a *AlertCenter) OnAlert(fn func(Alert)) {
	a.mu.Lock()
	a.onAlert = fn
	a.mu.Unlock()
}

// Emit records an alert for an inbound message.
func (a *AlertCenter) Emit(msg model.Message) {
	a.add(msg.Sender, Truncate(msg.Body, alertBodyLength))
}

// System records an alert that is about the subsystem itself rather than a
// message, e.g. persistent reconnect failure.
func (a *AlertCenter) System(text string) {
	a.add("system", Truncate(text, alertBodyLength))
}

func (a *AlertCenter) add(sender, body string) {
	a.mu.Lock()
	alert := Alert{
		ID:     a.nextID,
		Sender: sender,
		Body:   body,
		At:     time.Now(),
	}
	a.nextID++
	a.alerts = append(a.alerts, alert)
	fn := a.onAlert
	a.mu.Unlock()

	if fn != nil {
		fn(alert)
	}
}

// Dismiss removes one alert by id.
func (a *AlertCenter) Dismiss(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, alert := range a.alerts {
		if alert.ID == id {
			a.alerts = append(a.alerts[:i], a.alerts[i+1:]...)
			return
		}
	}
}

// Alerts returns a copy of the currently visible alerts.
func (a *AlertCenter) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}
