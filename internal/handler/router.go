package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"devreg/internal/domain"
	"devreg/internal/middleware"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Devices       *DeviceHandler
	Registrations *RegistrationHandler
	Transfers     *TransferHandler
	Wallet        *WalletHandler
	System        *SystemHandler
	// Events upgrades admin connections to the live event stream. Optional.
	Events http.HandlerFunc
}

// RouterOptions carries the middleware stacks. Global runs on every request,
// Public on unauthenticated API routes and Protected after authentication.
type RouterOptions struct {
	Auth      *middleware.AuthMiddleware
	Global    []mux.MiddlewareFunc
	Public    []mux.MiddlewareFunc
	Protected []mux.MiddlewareFunc
}

// NewRouter builds the /api/v1 surface.
func NewRouter(h Handlers, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(opts.Global...)

	r.HandleFunc("/health", h.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.System.Ready).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	public := api.NewRoute().Subrouter()
	public.Use(opts.Public...)
	public.HandleFunc("/verify/{imei}", h.Devices.Verify).Methods(http.MethodGet)
	public.HandleFunc("/reference", h.System.Reference).Methods(http.MethodGet)

	// Protected routes
	authed := api.NewRoute().Subrouter()
	authed.Use(opts.Auth.Authenticate)
	authed.Use(opts.Protected...)

	authed.HandleFunc("/registrations", h.Registrations.Register).Methods(http.MethodPost)
	authed.HandleFunc("/devices", h.Devices.List).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id}", h.Devices.Get).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id}/status", h.Devices.UpdateStatus).Methods(http.MethodPatch)
	authed.HandleFunc("/devices/{id}/history", h.Devices.History).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id}/registrations", h.Registrations.List).Methods(http.MethodGet)
	authed.HandleFunc("/devices/{id}/renew", h.Registrations.Renew).Methods(http.MethodPost)

	authed.HandleFunc("/transfers", h.Transfers.Initiate).Methods(http.MethodPost)
	authed.HandleFunc("/transfers/incoming", h.Transfers.Incoming).Methods(http.MethodGet)
	authed.HandleFunc("/transfers/outgoing", h.Transfers.Outgoing).Methods(http.MethodGet)
	authed.HandleFunc("/transfers/{id}", h.Transfers.Get).Methods(http.MethodGet)
	authed.HandleFunc("/transfers/{id}/accept", h.Transfers.Accept).Methods(http.MethodPost)
	authed.HandleFunc("/transfers/{id}/reject", h.Transfers.Reject).Methods(http.MethodPost)
	authed.HandleFunc("/transfers/{id}/cancel", h.Transfers.Cancel).Methods(http.MethodPost)
	authed.HandleFunc("/transfers/{id}/complete", h.Transfers.Complete).Methods(http.MethodPost)

	agent := authed.NewRoute().Subrouter()
	agent.Use(middleware.RequireRole(domain.RoleAgent))
	agent.HandleFunc("/agents/me/stats", h.Registrations.AgentStats).Methods(http.MethodGet)
	agent.HandleFunc("/wallet", h.Wallet.GetBalance).Methods(http.MethodGet)

	admin := authed.NewRoute().Subrouter()
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	admin.HandleFunc("/registrations/confirm", h.Registrations.Confirm).Methods(http.MethodPost)
	admin.HandleFunc("/wallet/fund", h.Wallet.Fund).Methods(http.MethodPost)
	admin.HandleFunc("/admin/devices/{id}/status", h.Devices.AdminSetStatus).Methods(http.MethodPatch)
	admin.HandleFunc("/admin/notifications", h.System.NotificationLogs).Methods(http.MethodGet)
	if h.Events != nil {
		admin.HandleFunc("/ws/events", h.Events).Methods(http.MethodGet)
	}

	return r
}
