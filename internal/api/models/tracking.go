package models

// TrackedLocationInput is the request body for tracking a new location.
// Either Query or both coordinates must be supplied. With only Query set the
// place is geocoded and the best match is tracked.
type TrackedLocationInput struct {
	Name    string   `json:"name,omitempty" validate:"omitempty,max=120"`
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Country string   `json:"country,omitempty" validate:"omitempty,max=64"`
	Query   string   `json:"query,omitempty" validate:"omitempty,max=120"`
}

// HasCoordinates reports whether both lat and lon were supplied.
func (in TrackedLocationInput) HasCoordinates() bool {
	return in.Lat != nil && in.Lon != nil
}

// TrackedLocation is one monitored location with its latest reading.
type TrackedLocation struct {
	Index         int                `json:"index"`
	Name          string             `json:"name"`
	Lat           float64            `json:"lat"`
	Lon           float64            `json:"lon"`
	Country       string             `json:"country,omitempty"`
	AQI           int                `json:"aqi"`
	Category      string             `json:"category"`
	Color         string             `json:"color"`
	Pollutants    map[string]float64 `json:"pollutants,omitempty"`
	Initialized   bool               `json:"initialized"`
	Stale         bool               `json:"stale"`
	LastError     string             `json:"lastError,omitempty"`
	LastUpdatedAt *Timestamp         `json:"lastUpdatedAt,omitempty"`
	AddedAt       Timestamp          `json:"addedAt"`
}

// TrackedLocationList is the user's collection in insertion order.
type TrackedLocationList struct {
	Items     []TrackedLocation `json:"items"`
	Scheduler SchedulerStatus   `json:"scheduler"`
}

// SchedulerStatus describes the user's refresh scheduler.
type SchedulerStatus struct {
	State             string         `json:"state"`
	IntervalSeconds   int64          `json:"intervalSeconds"`
	Passes            int64          `json:"passes"`
	CoalescedRequests int64          `json:"coalescedRequests"`
	SkippedTicks      int64          `json:"skippedTicks"`
	LastPassAt        *Timestamp     `json:"lastPassAt,omitempty"`
	LastErrorCount    int            `json:"lastErrorCount"`
	LastResult        *RefreshResult `json:"lastResult,omitempty"`
}

// RefreshResult summarises one refresh pass.
type RefreshResult struct {
	Trigger          string              `json:"trigger"`
	StartedAt        Timestamp           `json:"startedAt"`
	DurationSeconds  float64             `json:"durationSeconds"`
	Total            int                 `json:"total"`
	Updated          int                 `json:"updated"`
	Failed           int                 `json:"failed"`
	Discarded        int                 `json:"discarded"`
	AlertsDispatched int                 `json:"alertsDispatched"`
	Coalesced        bool                `json:"coalesced"`
	Errors           []RefreshEntryError `json:"errors,omitempty"`
}

// RefreshEntryError explains why one location was not refreshed.
type RefreshEntryError struct {
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Error    string  `json:"error"`
}
