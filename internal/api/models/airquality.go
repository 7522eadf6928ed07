package models

// AirQuality is a point-in-time reading for a coordinate.
type AirQuality struct {
	Lat        float64            `json:"lat"`
	Lon        float64            `json:"lon"`
	AQI        int                `json:"aqi"`
	Category   string             `json:"category"`
	Color      string             `json:"color"`
	Pollutants map[string]float64 `json:"pollutants"`
	SubIndices map[string]int     `json:"subIndices,omitempty"`
	MeasuredAt Timestamp          `json:"measuredAt"`
	FetchedAt  Timestamp          `json:"fetchedAt"`
	Provider   string             `json:"provider"`
}

// AirQualityForecast is the hourly outlook for a coordinate.
type AirQualityForecast struct {
	Lat       float64      `json:"lat"`
	Lon       float64      `json:"lon"`
	Hourly    []AirQuality `json:"hourly"`
	FetchedAt Timestamp    `json:"fetchedAt"`
	Provider  string       `json:"provider"`
}

// AirQualityHistory is the hourly series for a past window.
type AirQualityHistory struct {
	Lat      float64      `json:"lat"`
	Lon      float64      `json:"lon"`
	Start    Timestamp    `json:"start"`
	End      Timestamp    `json:"end"`
	PeakAQI  int          `json:"peakAqi"`
	Points   []AirQuality `json:"points"`
	Provider string       `json:"provider"`
}

// HistoryQuery holds the days query parameter of a history request.
type HistoryQuery struct {
	Days int `json:"days" validate:"gte=1,lte=180"`
}

// CoordinatesQuery holds the lat and lon query parameters.
type CoordinatesQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}
