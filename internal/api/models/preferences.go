package models

// Preferences is the user's refresh and alert configuration.
type Preferences struct {
	RefreshIntervalSeconds int64      `json:"refreshIntervalSeconds"`
	AlertThreshold         int        `json:"alertThreshold"`
	AlertsEnabled          bool       `json:"alertsEnabled"`
	WeeklyReports          bool       `json:"weeklyReports"`
	UpdatedAt              *Timestamp `json:"updatedAt,omitempty"`
}

// PreferencesInput is a partial update; omitted fields keep their value.
// Intervals below the floor are raised to it rather than rejected.
type PreferencesInput struct {
	RefreshIntervalSeconds *int64 `json:"refreshIntervalSeconds,omitempty" validate:"omitempty,gte=1,lte=86400"`
	AlertThreshold         *int   `json:"alertThreshold,omitempty" validate:"omitempty,gte=1,lte=5"`
	AlertsEnabled          *bool  `json:"alertsEnabled,omitempty"`
	WeeklyReports          *bool  `json:"weeklyReports,omitempty"`
}

// Me is the authenticated user's account summary.
type Me struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
}

// MeInput updates the account. An empty email clears the alert contact.
type MeInput struct {
	Email *string `json:"email" validate:"omitempty,email,max=254"`
}
