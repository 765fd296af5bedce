package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Google authorization
	r.HandleFunc("/api/auth", deps.AuthHandler.Status).Methods("GET")
	r.HandleFunc("/api/auth", deps.AuthHandler.Logout).Methods("DELETE")
	r.HandleFunc("/api/auth/login", deps.AuthHandler.Login).Methods("GET")
	r.HandleFunc("/api/auth/callback", deps.AuthHandler.Callback).Methods("GET")
	r.HandleFunc("/api/auth/code", deps.AuthHandler.SubmitCode).Methods("POST")

	// Calendars
	r.HandleFunc("/api/calendars", deps.CalendarHandler.ListCalendars).Methods("GET")

	// Settings
	r.HandleFunc("/api/settings", deps.SettingsHandler.GetSettings).Methods("GET")
	r.HandleFunc("/api/settings", deps.SettingsHandler.UpdateSettings).Methods("PUT")

	// Export
	r.HandleFunc("/api/colours", deps.ExportHandler.ListColours).Methods("GET")
	r.HandleFunc("/api/export", deps.ExportHandler.Export).Methods("POST")
}
