package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/orderrelay/internal/config"
	"github.com/kiwari-pos/orderrelay/internal/handler"
	mw "github.com/kiwari-pos/orderrelay/internal/middleware"
	"github.com/kiwari-pos/orderrelay/internal/ws"
	"go.uber.org/zap"
)

// Services are the collaborators behind the HTTP handlers. The concrete
// *service types satisfy every field.
type Services struct {
	Orders      handler.OrderServicer
	Refills     handler.RefillServicer
	Status      handler.StatusServicer
	PrintEvents interface {
		handler.PrintEventServicer
		handler.PrintEventCreator
	}
	Devices interface {
		handler.DeviceServicer
		handler.TokenIssuer
	}
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, svc Services, hub *ws.Hub, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	handler.NewAuthHandler(svc.Devices, cfg.DeviceTokenTTL, log).RegisterRoutes(r)

	// Dashboard stream; browsers pass the JWT as ?token= on the upgrade
	r.With(
		mw.AuthenticateFrom(cfg.JWTSecret, mw.QueryParam("token")),
		mw.RequireBranch("bid"),
	).Get("/ws/branches/{bid}/orders", ws.Handler(hub, log))

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler := handler.NewOrderHandler(svc.Orders, svc.Refills, svc.Status, svc.Devices, svc.PrintEvents, log)
		r.Route("/orders", orderHandler.RegisterRoutes)

		printEventHandler := handler.NewPrintEventHandler(svc.PrintEvents, log)
		r.Route("/print-events", printEventHandler.RegisterRoutes)

		handler.NewDeviceHandler(svc.Devices, log).RegisterRoutes(r)
	})

	log.Debug("router initialized")
	return r
}
