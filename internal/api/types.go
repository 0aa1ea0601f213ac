package api

// HealthResponse is the liveness response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ReadinessResponse is the readiness response once intake is open
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version   string `json:"version" example:"v0.1.0"`
	Commit    string `json:"commit" example:"abc123def"`
	BuildDate string `json:"build_date" example:"2025-01-15T10:30:00Z"`
	GoVersion string `json:"go_version" example:"go1.25.2"`
	Platform  string `json:"platform" example:"linux/amd64"`
}
