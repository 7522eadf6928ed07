package models

// WeatherConditions is the weather at one point in time, in metric units.
type WeatherConditions struct {
	Time          Timestamp `json:"time"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Rain          float64   `json:"rain"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description,omitempty"`
	Icon          string    `json:"icon,omitempty"`
}

// WeatherHour is one hour of the outlook. AQI is the forecast index for the
// hour, when known.
type WeatherHour struct {
	WeatherConditions
	AQI *int `json:"aqi,omitempty"`
}

// Weather is current conditions plus the hourly outlook for a coordinate.
type Weather struct {
	Lat           float64           `json:"lat"`
	Lon           float64           `json:"lon"`
	Current       WeatherConditions `json:"current"`
	Hourly        []WeatherHour     `json:"hourly"`
	StagnantHours int               `json:"stagnantHours"`
	FetchedAt     Timestamp         `json:"fetchedAt"`
	Provider      string            `json:"provider"`
}
