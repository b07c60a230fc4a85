package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/threatlanes/threatlanes-server-go/internal/bot"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"github.com/threatlanes/threatlanes-server-go/internal/repository"
	"github.com/threatlanes/threatlanes-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting threatlanes server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := loadLibrary(cfg.Content)
	if err != nil {
		logger.Fatal("failed to load card content", zap.Error(err))
	}
	logger.Info("card content loaded",
		zap.Int("day_threats", len(lib.Threats.DayThreats)),
		zap.Int("night_threats", len(lib.Threats.NightThreats)),
		zap.Int("bosses", len(lib.Threats.Bosses)),
		zap.Int("upgrades", len(lib.Market.UpgradeDeck)),
		zap.Int("weapons", len(lib.Market.WeaponDeck)),
	)

	engine := game.NewEngine(logger, lib, cfg.GameRules())
	engine.SetReplayRecorder(game.NewReplayRecorder(logger, cfg.Replay.Dir))
	engine.SetInvariantChecks(cfg.Logging.Level == "debug")

	store, err := repository.Open(ctx, logger, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open result store", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
		engine.SetResultStore(store)
	}

	p := planner.New(logger)
	constraints := cfg.Constraints()
	driver := bot.NewDriver(logger, engine, p, constraints, bot.WithTurnTimeout(cfg.Planner.TurnTimeout))

	opts := []server.Option{
		server.WithPlanner(p, constraints, cfg.Planner.TurnTimeout),
		server.WithBots(driver, 0),
	}
	if store != nil {
		opts = append(opts, server.WithResults(store))
	}
	srv := server.New(logger, cfg.Server, engine, opts...)

	grpcServer, healthServer := srv.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTP.Address,
		Handler: srv.Router(),
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
			stop()
		}
	}()

	logger.Info("threatlanes server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("database", cfg.Database.Driver),
	)

	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bot runs still active at shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("threatlanes server stopped")
}

// loadLibrary reads card data from cfg.Dir, or the embedded decks when it is
// empty.
func loadLibrary(cfg config.ContentConfig) (*content.Library, error) {
	if cfg.Dir == "" {
		return content.Default()
	}
	return content.Load(os.DirFS(cfg.Dir))
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
