package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHealth = "/healthz"

	// Auth Routes - Google sign-in
	RouteGoogleStart    = "/api/auth/google/start"
	RouteGoogleCallback = "/api/auth/google/callback"

	// Auth Routes - Account
	RouteMe     = "/api/auth/me"
	RouteLogout = "/api/auth/logout"

	// Connection Routes
	RouteConnections       = "/api/connections"
	RouteCurrentConnection = "/api/connections/current"
)
