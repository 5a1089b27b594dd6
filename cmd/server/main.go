// Command server wires the matching engine to every external interface
// from spec.md §6: the Redis order_queue/market_updates bridge, the
// REST API, the websocket market-data feed, the binary TCP protocol,
// and Postgres persistence. Adapted from the teacher's
// signal.NotifyContext-based shutdown pattern.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clobcore/internal/api"
	"clobcore/internal/channels"
	"clobcore/internal/config"
	"clobcore/internal/engine"
	"clobcore/internal/ingress"
	"clobcore/internal/net"
	"clobcore/internal/persist"
	"clobcore/internal/ws"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("server: failed to load configuration")
	}

	store, err := persist.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("server: failed to open persistence store")
	}
	defer store.Close()

	bus := channels.NewBus(cfg.IngressCapacity)
	eng := engine.New(cfg.Markets, bus.Ingress, bus.Persist, bus.MarketData)

	// The broadcaster fans bus.MarketData out to every websocket
	// subscriber AND to the Redis bridge's market_updates publisher,
	// each getting its own bounded subscriber channel rather than
	// racing to drain the engine's single outbound channel.
	broadcaster := channels.NewBroadcaster()
	redisFeed, unsubscribeRedisFeed := broadcaster.Subscribe()
	defer unsubscribeRedisFeed()

	bridge, err := ingress.NewBridge(cfg.RedisURL, bus.Ingress, redisFeed)
	if err != nil {
		log.Fatal().Err(err).Msg("server: failed to connect to redis")
	}

	restServer := api.NewServer(bus.Ingress, store)
	wsServer := ws.NewServer(broadcaster)
	tcpServer := net.New(cfg.APIHost, 9001, bus.Ingress)

	t, ctx := tomb.WithContext(ctx)

	t.Go(func() error { return eng.Run(t) })
	t.Go(func() error { return store.Run(t, bus.Persist) })
	t.Go(func() error { return bridge.Run(t) })
	t.Go(func() error {
		broadcaster.Run(ctx, bus.MarketData)
		return nil
	})
	t.Go(func() error { return tcpServer.Run(ctx) })
	t.Go(func() error { return runRESTServer(t, cfg, restServer) })
	t.Go(func() error { return runWebSocketServer(t, cfg, wsServer) })

	log.Info().Int("markets", len(cfg.Markets)).Msg("server: all components started")

	// Every supervised loop selects on t.Dying() and exits as soon as
	// shutdown starts, so there is no producer left that could still be
	// sending on bus.Ingress by the time it would be closed — closing it
	// here, instead, is left to a clean process exit.
	<-t.Dying()
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("server: shut down with error")
	}
}

func runRESTServer(t *tomb.Tomb, cfg config.Config, restServer *api.Server) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: restServer.Handler(),
	}
	return runHTTPServer(t, srv, "rest")
}

func runWebSocketServer(t *tomb.Tomb, cfg config.Config, wsServer *ws.Server) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.WebSocketHost, cfg.WebSocketPort),
		Handler: mux,
	}
	return runHTTPServer(t, srv, "websocket")
}

func runHTTPServer(t *tomb.Tomb, srv *http.Server, name string) error {
	go func() {
		<-t.Dying()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", name).Str("addr", srv.Addr).Msg("server: http listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
