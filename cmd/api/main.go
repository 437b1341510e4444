package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxinav/internal/api"
	"taxinav/internal/metrics"
	"taxinav/internal/scenario"
)

func main() {
	seedPath := flag.String("scenario", "", "seed a scenario from a YAML file on startup")
	flag.Parse()

	srvDeps, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	if *seedPath != "" {
		in, err := scenario.Load(*seedPath)
		if err != nil {
			log.Fatalf("failed to load scenario: %v", err)
		}
		sc, err := srvDeps.Store.CreateScenario(context.Background(), "t_demo", in)
		if err != nil {
			log.Fatalf("failed to seed scenario: %v", err)
		}
		log.Printf("seeded scenario %s (%s)", sc.ID, sc.Name)
	}

	mux := http.NewServeMux()

	// Scenarios
	mux.HandleFunc("/v1/scenarios", srvDeps.ScenariosHandler)
	mux.HandleFunc("/v1/scenarios/", srvDeps.ScenarioByIDHandler)

	// Plans
	mux.HandleFunc("/v1/plans", srvDeps.PlansHandler)
	mux.HandleFunc("/v1/plans/", srvDeps.PlanByIDHandler) // includes /events/stream

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)

	// Plan events over WebSocket
	mux.HandleFunc("/v1/ws", srvDeps.PlanEventsWSHandler)

	// Health, metrics, debug, docs
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
	mux.HandleFunc("/openapi.yaml", srvDeps.OpenAPIHandler)
	mux.HandleFunc("/docs", srvDeps.DocsHandler)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(metricsMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	// Start webhook worker
	if srvDeps.Pub != nil {
		worker := srvDeps.NewWebhookWorker()
		worker.Start()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(c int) {
	w.code = c
	w.ResponseWriter.WriteHeader(c)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// routeLabel collapses resource ids so metric label cardinality stays bounded.
func routeLabel(p string) string {
	switch {
	case strings.HasPrefix(p, "/v1/scenarios/"):
		return "/v1/scenarios/{id}"
	case strings.HasPrefix(p, "/v1/plans/"):
		if strings.HasSuffix(p, "/events/stream") {
			return "/v1/plans/{id}/events/stream"
		}
		return "/v1/plans/{id}"
	case strings.HasPrefix(p, "/v1/subscriptions/"):
		return "/v1/subscriptions/{id}"
	case strings.HasPrefix(p, "/v1/admin/webhook-deliveries/"):
		return "/v1/admin/webhook-deliveries/{id}/retry"
	}
	return p
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.code)
		path := routeLabel(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
