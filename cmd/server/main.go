package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"driveguardian/go-backend/internal/config"
	"driveguardian/go-backend/internal/database"
	"driveguardian/go-backend/internal/handlers"
	"driveguardian/go-backend/internal/logger"
	"driveguardian/go-backend/internal/rpc"
	"driveguardian/go-backend/internal/services"
	"driveguardian/go-backend/internal/store"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC port (overrides GRPC_PORT)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = strings.TrimPrefix(*httpPort, ":")
	}
	if *grpcPort != "" {
		cfg.GRPCPort = strings.TrimPrefix(*grpcPort, ":")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	lg, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "driveguardian-backend")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("starting",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	alerter, closeAlerter := buildAlerter(cfg, lg)
	defer closeAlerter()

	metrics := services.NewMetrics()
	repo := store.NewRepository(kv, cfg.HistoryLimit, cfg.PublishedLimit, lg)
	h := handlers.New(handlers.Deps{
		Repo:        repo,
		StoreName:   cfg.StoreBackend,
		Metrics:     metrics,
		Alerter:     alerter,
		Params:      cfg.DetectionParams(),
		Logger:      lg,
		CORSOrigins: cfg.CORSOrigins,
	})

	maxMsg := cfg.MaxMessageSizeMB * 1024 * 1024
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
	)
	rpc.RegisterDrowsinessMonitorServer(grpcServer, handlers.NewGRPCHandler(h))

	mux := http.NewServeMux()
	h.Routes(mux)
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- serveGRPC(grpcServer, cfg.GRPCPort, lg) }()
	go func() {
		lg.Info("HTTP server listening",
			zap.String("websocket", fmt.Sprintf("ws://localhost:%s/ws", cfg.HTTPPort)),
			zap.String("rest", fmt.Sprintf("http://localhost:%s/api/*", cfg.HTTPPort)))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err := <-errCh:
		lg.Error("server failed", zap.Error(err))
	}

	shutdown(grpcServer, httpServer, h, lg)
	lg.Info("goodbye")
}

// openStore returns the configured backend and the function that releases it.
func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (store.KV, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		lg.Info("connecting to redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		r, err := store.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {
			if err := r.Close(); err != nil {
				lg.Warn("failed to close redis", zap.Error(err))
			}
		}, nil
	case config.BackendPostgres:
		lg.Info("connecting to postgres", zap.String("dsn", cfg.DSNForLog()))
		db, err := database.InitDB(ctx, cfg.DSN(), lg)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(db), func() { database.CloseDB(db, lg) }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

// buildAlerter always logs tone edges and also publishes them over MQTT
// when a broker is configured. A broker that cannot be reached is not fatal.
func buildAlerter(cfg *config.Config, lg *zap.Logger) (services.Alerter, func()) {
	base := services.NewLogAlerter(lg)
	if !cfg.MQTTEnabled() {
		return base, func() {}
	}
	client, err := services.NewMQTTClient(services.MQTTConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	if err != nil {
		lg.Warn("MQTT alert device unavailable, continuing with log alerts", zap.Error(err))
		return base, func() {}
	}
	lg.Info("MQTT alert device connected",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("topic_prefix", cfg.MQTTTopicPrefix))
	return services.Multi{base, services.NewMQTTAlerter(client, cfg.MQTTTopicPrefix)}, client.Disconnect
}

func serveGRPC(s *grpc.Server, port string, lg *zap.Logger) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on gRPC port %s: %w", port, err)
	}
	lg.Info("gRPC server listening", zap.String("port", port))
	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("serve gRPC: %w", err)
	}
	return nil
}

func shutdown(grpcServer *grpc.Server, httpServer *http.Server, h *handlers.Handler, lg *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		lg.Info("stopping gRPC server")
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		lg.Info("gRPC server stopped")
	case <-shutdownCtx.Done():
		lg.Warn("forced gRPC shutdown")
		grpcServer.Stop()
	}

	httpShutdownCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	lg.Info("stopping HTTP server")
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		lg.Error("error shutting down HTTP server", zap.Error(err))
	}

	lg.Info("closing WebSocket connections")
	h.CloseAll()
}
