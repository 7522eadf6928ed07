// Package weather serves current conditions and the hourly outlook shown
// alongside air quality readings.
package weather

import (
	"errors"
	"time"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// MaxForecastHours caps the hourly outlook.
const MaxForecastHours = 96

// Condition is the broad sky condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// Conditions is the weather at one point in time. Temperatures are Celsius,
// wind in m/s, pressure in hPa and rain in mm over the preceding hour.
type Conditions struct {
	Time          time.Time
	Temperature   float64
	FeelsLike     float64
	Humidity      float64
	Pressure      float64
	WindSpeed     float64
	WindDirection float64
	Rain          float64
	Condition     Condition
	Description   string
	Icon          string
}

// Stagnant reports whether wind is too light to disperse pollutants.
func (c *Conditions) Stagnant() bool {
	return c.WindSpeed < 1
}

// Report bundles current conditions with the hourly outlook for a coordinate.
type Report struct {
	Lat       float64
	Lon       float64
	Current   Conditions
	Hourly    []Conditions
	FetchedAt time.Time
	Provider  string
}

// StagnantHours counts the upcoming hours with stagnant air.
func (r *Report) StagnantHours() int {
	n := 0
	for i := range r.Hourly {
		if r.Hourly[i].Stagnant() {
			n++
		}
	}
	return n
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
