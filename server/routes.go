package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteGoogleStart, ChainMiddleware(s.GoogleStartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteGoogleCallback, ChainMiddleware(s.GoogleCallbackHandler(), s.APIMiddleware()...))

	// Identity token required
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequirePolicy(s.identityPolicy))...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequirePolicy(s.identityPolicy))...))
	s.RegisterRouteHandler("POST "+RouteConnections, ChainMiddleware(s.OpenConnectionHandler(), s.APIMiddleware(s.RequirePolicy(s.openPolicy))...))

	// Identity token and database session required
	s.RegisterRouteHandler("GET "+RouteCurrentConnection, ChainMiddleware(s.CurrentConnectionHandler(), s.APIMiddleware(s.RequirePolicy(s.sessionPolicy))...))
	s.RegisterRouteHandler("DELETE "+RouteCurrentConnection, ChainMiddleware(s.CloseConnectionHandler(), s.APIMiddleware(s.RequirePolicy(s.sessionPolicy))...))
}
