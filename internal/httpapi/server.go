package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"csms/internal/centralsystem"
	"csms/internal/log"
	"csms/internal/metrics"
	"csms/internal/ocpp"
	"csms/internal/services"
)

// Commands sends operator commands to charge points.
type Commands interface {
	RemoteStartTransaction(ctx context.Context, identity string, connectorId *int, idTag string) (*ocpp.RemoteStartTransactionConfirmation, error)
	RemoteStopTransaction(ctx context.Context, identity string, transactionId *int) (*ocpp.RemoteStopTransactionConfirmation, error)
}

type Server struct {
	// Token protects /api when set.
	Token string
	// OCPP serves charge point websockets under OCPPPath.
	OCPP     http.Handler
	OCPPPath string

	Connected    func() []string
	Commands     Commands
	ChargePoints *services.ChargePointService
	Ledger       *services.TransactionLedger
	Log          log.Logger
}

func NewServer(token, ocppPath string, ocppHandler http.Handler, cs *centralsystem.CentralSystem, chargePoints *services.ChargePointService, ledger *services.TransactionLedger, logger log.Logger) *Server {
	return &Server{
		Token:        token,
		OCPP:         ocppHandler,
		OCPPPath:     ocppPath,
		Connected:    cs.Connected,
		Commands:     cs.Gateway(),
		ChargePoints: chargePoints,
		Ledger:       ledger,
		Log:          logger.WithName("http"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if s.OCPP != nil {
		// websocket upgrades are logged by the transport
		r.Handle(strings.TrimSuffix(s.OCPPPath, "/")+"/*", s.OCPP)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.Log))
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Handle("/metrics", metrics.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.Token, next) })
			r.Get("/chargers", s.ListChargers)
			r.Get("/chargers/{identity}", s.GetCharger)
			r.Get("/chargers/{identity}/transactions", s.ListTransactions)
			r.Post("/chargers/{identity}/remote-start", s.RemoteStart)
			r.Post("/chargers/{identity}/remote-stop", s.RemoteStop)
			r.Get("/transactions/{transactionId}", s.GetTransaction)
		})
	})
	return r
}
