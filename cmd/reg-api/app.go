package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/RegBox/internal/api/coordinator_api"
	"github.com/BearBump/RegBox/internal/broker/messages"
	"github.com/BearBump/RegBox/internal/integrations/executor"
	"github.com/BearBump/RegBox/internal/services/challenges"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"
)

type regAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string
	sweepInterval time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type regAPIDeps struct {
	api        *coordinator_api.CoordinatorAPI
	challenges *challenges.Service
	dispatcher *dispatcher
	consumer   kafkaConsumer
}

func runRegAPI(ctx context.Context, opts regAPIOpts, deps regAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	r.Mount("/", deps.api.Router())

	httpErr := make(chan error, 1)
	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = deps.consumer.Consume(ctx, func(_key, value []byte) error {
			return deps.dispatcher.handleOpenDetected(ctx, value)
		})
	}()

	go runTicketSweeper(ctx, deps.challenges, opts.sweepInterval)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// dispatcher starts the external attempt executor on open_detected events.
// The ClaimAttempt CAS makes duplicate deliveries harmless.
type dispatcher struct {
	claims attemptClaimer
	exec   executor.Client
}

type attemptClaimer interface {
	ClaimAttempt(ctx context.Context, planID uint64, sessionID string, now time.Time) (bool, error)
}

func newDispatcher(claims attemptClaimer, exec executor.Client) *dispatcher {
	return &dispatcher{claims: claims, exec: exec}
}

func (d *dispatcher) handleOpenDetected(ctx context.Context, value []byte) error {
	var m messages.RegistrationOpenDetected
	if err := json.Unmarshal(value, &m); err != nil {
		// Битое сообщение ретраить бессмысленно: логируем и коммитим.
		slog.Error("unmarshal open_detected", "error", err.Error())
		return nil
	}

	sessionID := uuid.NewString()
	won, err := d.claims.ClaimAttempt(ctx, m.PlanID, sessionID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		slog.Info("attempt already claimed", "plan_id", m.PlanID)
		return nil
	}

	slog.Info("starting attempt", "plan_id", m.PlanID, "session_id", sessionID)
	if err := d.exec.Start(ctx, m.PlanID, sessionID); err != nil {
		// Claim уже занят, редоставка его не вернёт: только лог.
		slog.Error("start attempt executor", "plan_id", m.PlanID, "session_id", sessionID, "error", err.Error())
	}
	return nil
}

func runTicketSweeper(ctx context.Context, ch *challenges.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := ch.ExpireSweep(ctx, time.Now().UTC())
			if err != nil {
				slog.Error("ticket expire sweep", "error", err.Error())
				continue
			}
			if n > 0 {
				slog.Info("expired tickets", "count", n)
			}
		}
	}
}
