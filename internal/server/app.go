package server

import (
	"context"
	"fmt"
	"net/http"

	"csms/internal/centralsystem"
	"csms/internal/config"
	"csms/internal/httpapi"
	"csms/internal/log"
	"csms/internal/notifier"
	"csms/internal/ocppj"
	"csms/internal/services"
	"csms/internal/store"
)

// App is a fully wired central system.
type App struct {
	CentralSystem *centralsystem.CentralSystem
	Handler       http.Handler
	HTTP          *HTTPServer

	// workers consume what the servers produce and stop after them.
	workers *Manager
	servers *Manager
}

// Build wires the central system on top of st. It does not take ownership of
// st.
func Build(cfg *config.Config, st store.Store, logger log.Logger) (*App, error) {
	workers := NewManager(logger.WithName("workers"))
	servers := NewManager(logger.WithName("servers"))

	chargePoints := services.NewChargePointService(st.ChargePoints(), logger.WithName("chargepoints"))
	ledger := services.NewTransactionLedger(st.Transactions(), logger.WithName("ledger"))

	var auditor *services.Auditor
	if cfg.Audit.Enabled {
		auditor = services.NewAuditor(st.Audit(), cfg.Audit.QueueSize, logger.WithName("audit"))
		workers.Add("audit", RunFunc(auditor.Run))
	}

	var events notifier.Notifier = notifier.Nop{}
	if cfg.MQTT.Enabled() {
		mq, err := notifier.NewMQTT(cfg.MQTT, logger.WithName("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("init mqtt notifier: %w", err)
		}
		events = mq
		workers.Add("mqtt", RunFunc(mq.Run))
	}

	gate, err := centralsystem.NewAuthGate(cfg.Auth.Mode, cfg.Auth.SharedSecret())
	if err != nil {
		return nil, err
	}
	cs, err := centralsystem.New(centralsystem.Options{
		Auth:              gate,
		ChargePoints:      chargePoints,
		Ledger:            ledger,
		Auditor:           auditor,
		Notifier:          events,
		Logger:            logger,
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
	})
	if err != nil {
		return nil, err
	}

	ocppSrv := ocppj.NewServer(cfg.OCPP.Transport(), cs, logger.WithName("ocppj"))
	cs.Attach(ocppSrv)

	api := httpapi.NewServer(cfg.API.Token, cfg.OCPP.Path, ocppSrv, cs, chargePoints, ledger, logger)
	handler := api.Routes()

	httpSrv := NewHTTPServer(cfg.HTTP.Addr, handler, ocppSrv, cfg.HTTP.ReadHeaderTimeout, cfg.HTTP.ShutdownTimeout, logger.WithName("http"))
	servers.Add("http", httpSrv)

	if cfg.Auth.Mode == centralsystem.AuthModeHandshake && !cfg.Auth.SharedSecret().Configured() {
		logger.Warn("no charger secret configured, websocket handshakes are not authenticated")
	}
	if cfg.API.Token == "" {
		logger.Warn("api.token is empty, the operator API is unauthenticated")
	}

	return &App{CentralSystem: cs, Handler: handler, HTTP: httpSrv, workers: workers, servers: servers}, nil
}

// Run blocks until ctx is done or a component fails. Workers are stopped
// only after the servers returned, so the audit entries and events of the
// final disconnects are still delivered.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wctx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	workersDone := make(chan error, 1)
	go func() {
		err := a.workers.Start(wctx)
		if err != nil {
			cancel()
		}
		workersDone <- err
	}()

	err := a.servers.Start(ctx)
	stopWorkers()
	if werr := <-workersDone; err == nil {
		err = werr
	}
	return err
}
