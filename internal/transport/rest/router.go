package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"rollcall/internal/service"
	"rollcall/internal/transport/rest/handler"
	"rollcall/internal/transport/rest/middleware"
	"rollcall/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	SessionService   *service.SessionService
	ScanService      *service.ScanService
	AggregateService *service.AggregateService
	MarkService      *service.MarkService
	WSHub            *ws.Hub

	CORSAllowedOrigins string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.SessionService, c.AuthService)
	scanHandler := handler.NewScanHandler(c.ScanService)
	reportHandler := handler.NewReportHandler(c.AggregateService, c.MarkService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORSAllowedOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{id}/token", sessionHandler.Token).Methods("GET", "OPTIONS")

	// WebSocket routes (token in query param)
	v1.HandleFunc("/ws/sessions/{id}/display", wsHandler.DisplayWS).Methods("GET")
	v1.HandleFunc("/ws/sessions/{id}/instructor", wsHandler.InstructorWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Instructor routes
	instructorRoutes := v1.NewRoute().Subrouter()
	instructorRoutes.Use(authMW.RequireInstructor)

	instructorRoutes.HandleFunc("/sessions", sessionHandler.Open).Methods("POST", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/close", sessionHandler.Close).Methods("POST", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/late-mode", sessionHandler.SetLateMode).Methods("PUT", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/sweep", sessionHandler.Sweep).Methods("POST", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/marks", reportHandler.Marks).Methods("GET", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/marks/{subjectId}", reportHandler.CorrectMark).Methods("PATCH", "OPTIONS")
	instructorRoutes.HandleFunc("/sessions/{id}/aggregate", reportHandler.SessionAggregate).Methods("GET", "OPTIONS")
	instructorRoutes.HandleFunc("/classes/{id}/aggregate", reportHandler.ClassAggregate).Methods("GET", "OPTIONS")

	// Subject routes (session-scoped token)
	subjectRoutes := v1.NewRoute().Subrouter()
	subjectRoutes.Use(authMW.RequireSubject)

	subjectRoutes.HandleFunc("/sessions/{id}/scans", scanHandler.Submit).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
