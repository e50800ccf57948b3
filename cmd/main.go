package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bascecoride/ecoride-server-deploy104/internal/accounts"
	"github.com/bascecoride/ecoride-server-deploy104/internal/config"
	"github.com/bascecoride/ecoride-server-deploy104/internal/dispatch"
	"github.com/bascecoride/ecoride-server-deploy104/internal/payments"
	"github.com/bascecoride/ecoride-server-deploy104/internal/realtime"
	"github.com/bascecoride/ecoride-server-deploy104/internal/registry"
	"github.com/bascecoride/ecoride-server-deploy104/internal/rides"
	"github.com/bascecoride/ecoride-server-deploy104/internal/settings"
	"github.com/bascecoride/ecoride-server-deploy104/migrations"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/db"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/jwt"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/kafka"
	rredis "github.com/bascecoride/ecoride-server-deploy104/pkg/redis"
)

const disconnectGrace = 5 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 1. Configuration ──
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := jwt.Init(cfg.JWTSecret); err != nil {
		log.Fatal(err)
	}

	// ── 2. PostgreSQL ──
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.RunMigrations(ctx, migrations.FS); err != nil {
		log.Fatal("migrations failed:", err)
	}

	// ── 3. Redis ──
	redisClient, err := rredis.NewClient(cfg.RedisAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	// ── 4. Kafka ──
	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if err := kafkaClient.EnsureTopics(ctx,
		kafka.TopicRideRequested,
		kafka.TopicRideAccepted,
		kafka.TopicRideCompleted,
		kafka.TopicRideCancelled,
		kafka.TopicRideTimedOut,
	); err != nil {
		log.Fatal(err)
	}

	// ── 5. Runtime settings ──
	settingsSvc := settings.NewService(settings.NewPostgresStore(database), redisClient)
	if err := settingsSvc.Reload(ctx); err != nil {
		log.Fatal(err)
	}
	redisClient.WatchSettings(ctx, settingsSvc.HandleInvalidation)

	// ── 6. Matching core ──
	reg := registry.New(disconnectGrace)
	hub := realtime.NewHub()
	rideStore := rides.NewPostgresStore(database.Pool)

	dispatcher := dispatch.NewManager(rideStore, reg, settingsSvc, hub, kafkaClient).
		WithSchedule(cfg.DispatchInterval, cfg.DispatchRetries)

	var charger rides.Charger
	if c := payments.NewStripeCharger(cfg.StripeAPIKey); c != nil {
		charger = c
	}

	rideSvc := rides.NewService(rideStore, reg, settingsSvc, hub, dispatcher, kafkaClient, redisClient, charger)

	// Rides left searching by a previous process keep their timeout budget.
	if err := dispatcher.Resume(ctx); err != nil {
		log.Printf("dispatch resume: %v", err)
	}

	// ── 7. Accounts and websocket session layer ──
	accountSvc := accounts.NewService(database.Pool)
	session := realtime.NewSession(hub, rideSvc, reg, accountSvc)

	// ── 8. HTTP router ──
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(jwt.OptionalAuth)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ecoride-server"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	rideHandler := rides.NewHandler(rideSvc)
	r.Mount("/auth", accounts.NewHandler(accountSvc).Routes())
	r.Mount("/rides", rideHandler.Routes())
	r.Mount("/settings", settings.NewHandler(settingsSvc).Routes())
	r.With(jwt.RequireAuth).Get("/fares", rideHandler.EstimateFares)
	r.Mount("/ws", session.Routes())

	// ── 9. Start server ──
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}

	go func() {
		log.Printf("ecoride-server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// ── 10. Graceful shutdown ──
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	dispatcher.StopAll()
	cancel() // stop the settings watcher
}
