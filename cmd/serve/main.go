// Package classification Activities Service.
//
// Plan activities, attend them and discuss them in real time.
//
// Terms Of Service:
//
// there are no TOS at this moment, use at your own risk we take no responsibility
//
//    Version: 0.1.0
//    License: TODO
//    Contact: <info@dhis2.org> https://github.com/dhis2-sre/im-activities
//
//    Consumes:
//      - application/json
//
//    Produces:
//      - application/json
//
//    SecurityDefinitions:
//      oauth2:
//        type: oauth2
//        tokenUrl: /not-valid--endpoint-is-served-by-the-identity-provider
//        refreshUrl: /not-valid--endpoint-is-served-by-the-identity-provider
//        flow: password
// swagger:meta
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhis2-sre/im-activities/internal/log"
	"github.com/dhis2-sre/im-activities/internal/middleware"
	"github.com/dhis2-sre/im-activities/internal/server"
	"github.com/dhis2-sre/im-activities/pkg/activity"
	"github.com/dhis2-sre/im-activities/pkg/authorization"
	"github.com/dhis2-sre/im-activities/pkg/comment"
	"github.com/dhis2-sre/im-activities/pkg/config"
	"github.com/dhis2-sre/im-activities/pkg/event"
	"github.com/dhis2-sre/im-activities/pkg/hub"
	"github.com/dhis2-sre/im-activities/pkg/mediator"
	"github.com/dhis2-sre/im-activities/pkg/storage"
	"github.com/dhis2-sre/im-activities/pkg/user"
	"github.com/dhis2-sre/im-activities/pkg/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger := slog.New(log.New(log.NewJSONHandler(os.Stdout, cfg.LogLevel, cfg.LogPretty)))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Failed to shutdown tracing", "error", err)
		}
	}()

	db, err := storage.NewDatabase(logger, cfg.Postgresql)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(logger, cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer closePublisher()

	activityRepository := activity.NewRepository(db)
	activityService := activity.NewService(activityRepository, publisher)
	commentService := comment.NewService(comment.NewRepository(db), publisher)

	validator, err := validation.New()
	if err != nil {
		return err
	}
	behaviors := []mediator.Behavior{
		validation.Behavior(validator),
		authorization.Behavior(logger, authorization.NewEngine(activityRepository)),
	}
	var registrations []mediator.Registration
	registrations = append(registrations, activity.Registrations(activityService)...)
	registrations = append(registrations, comment.Registrations(commentService)...)
	pipeline, err := mediator.New(logger, behaviors, registrations...)
	if err != nil {
		return err
	}
	var requests []mediator.Request
	requests = append(requests, activity.Requests...)
	requests = append(requests, comment.Requests...)
	if err := pipeline.Verify(requests...); err != nil {
		return err
	}

	commentHub := hub.New(logger)
	if cfg.Redis != nil {
		redis, err := storage.NewRedis(*cfg.Redis)
		if err != nil {
			return err
		}
		defer redis.Close()
		commentHub.WithBackplane(hub.NewRedisBackplane(logger, redis))
	}

	authentication := middleware.NewAuthentication(logger, cfg.Authentication.PublicKey)
	r, router := server.GetEngine(logger, cfg.BasePath, cfg.AllowedOrigins)
	user.Routes(router, authentication, user.NewHandler(user.NewRepository(db)))
	activity.Routes(router, authentication, activity.NewHandler(pipeline))
	comment.Routes(router, authentication, comment.NewHandler(logger, pipeline, commentHub))
	hub.Routes(router, authentication, hub.NewHandler(logger, commentHub, pipeline, cfg.AllowedOrigins))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return commentHub.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("Listening", "addr", srv.Addr, "basePath", cfg.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupTracing(endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %v", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "im-activities"))),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func newPublisher(logger *slog.Logger, cfg *config.RabbitMQ) (activityPublisher, func(), error) {
	if cfg == nil {
		logger.Info("RabbitMQ not configured, domain events are not published")
		return event.NopPublisher{}, func() {}, nil
	}

	conn, err := event.Dial(logger, cfg.GetURI(), cfg.Exchange)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection", "error", err)
		}
	}
	return event.NewPublisher(logger, conn, cfg.Exchange), closer, nil
}

type activityPublisher interface {
	Publish(ctx context.Context, kind, activityID string, payload any)
}
