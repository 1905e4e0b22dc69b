package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"gorm.io/gorm"

	"github.com/floralog/floralog/internal/config"
	"github.com/floralog/floralog/internal/infra/database"
	"github.com/floralog/floralog/internal/infra/repository"
	"github.com/floralog/floralog/internal/present/rest"
	"github.com/floralog/floralog/internal/present/rest/middleware"
	"github.com/floralog/floralog/internal/service"
	"github.com/floralog/floralog/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Server.EnableTrace {
		shutdown, err := setupTracer(ctx, cfg.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to setup tracer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	var db *gorm.DB
	if cfg.Server.PostgresDsn != "" {
		db, err = database.NewPostgres(cfg.Server.PostgresDsn)
		if err != nil {
			slog.Error("failed to connect database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := database.MigratePostgres(db); err != nil {
			slog.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	rdb := database.NewRedis(cfg.Server.RedisAddr, "", cfg.Server.RedisDB)

	observationRepo := repository.NewObservationRepository(db, cfg.Store.StartID)
	if err := observationRepo.Load(ctx); err != nil {
		slog.Error("failed to load observations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	roleRepo := repository.NewRoleRepository(db, cfg.Store.Admin)
	if err := roleRepo.Load(ctx, cfg.Store.Verifiers); err != nil {
		slog.Error("failed to load roles", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signal := service.NewSignalService(rdb)
	auth := service.NewAuthService(&cfg.NodeInfo)
	observation := usecase.NewObservationUsecase(observationRepo, roleRepo, signal)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	authMiddleware := middleware.NewAuthMiddleware(auth, cfg.NodeInfo)
	e.Use(authMiddleware.IdentifyIdentity)

	handler := rest.NewHandler(cfg.NodeInfo, observation, signal)
	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(cfg.Server.Listen))
}

func setupTracer(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("floralog"),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
