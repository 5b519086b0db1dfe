package routes

import "fmt"

// APIVersion is the version segment of every API path.
const APIVersion = "v0"

// Base returns the versioned API base path (e.g., "/api/v0").
func Base() string {
	return fmt.Sprintf("/api/%s", APIVersion)
}

// Ask returns the question answering path (e.g., "/api/v0/ask").
func Ask() string {
	return Base() + "/ask"
}

// AskEvents returns the replay path pattern for a run's events.
func AskEvents() string {
	return Ask() + "/:id/events"
}

// Vachanamrut returns the full-text lookup path.
func Vachanamrut() string {
	return Base() + "/vachanamrut"
}

// Health returns the versioned health path (e.g., "/api/v0/health").
func Health() string {
	return Base() + "/health"
}
