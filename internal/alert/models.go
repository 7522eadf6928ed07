// Package alert decides when a refreshed reading warrants notifying the user
// and delivers the resulting alerts.
package alert

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/tracking"
)

// Dispatch errors.
var (
	ErrAlertsDisabled = errors.New("alert sending is disabled")
	ErrNoDispatcher   = errors.New("no alert dispatcher configured")
)

// Alert is a single notification that a tracked location reached the user's threshold.
type Alert struct {
	ID           uuid.UUID
	Recipient    string
	LocationName string
	Country      string
	Coordinates  tracking.Coordinates
	Index        airquality.Index
	Threshold    int
	Timestamp    time.Time
}

// Event is the wire form of an alert used by the webhook and Kafka dispatchers.
type Event struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	LocationName string    `json:"locationName"`
	Country      string    `json:"country,omitempty"`
	AQI          int       `json:"aqi"`
	Description  string    `json:"description"`
	Threshold    int       `json:"threshold"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event converts the alert to its wire form.
func (a Alert) Event() Event {
	return Event{
		ID:           a.ID.String(),
		Email:        a.Recipient,
		LocationName: a.LocationName,
		Country:      a.Country,
		AQI:          int(a.Index),
		Description:  a.Index.Description(),
		Threshold:    a.Threshold,
		Lat:          a.Coordinates.Lat,
		Lon:          a.Coordinates.Lon,
		Timestamp:    a.Timestamp.UTC(),
	}
}
