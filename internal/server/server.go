package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/84hero/stream-gateway/internal/metrics"
	"github.com/84hero/stream-gateway/pkg/dispatch"
	"github.com/84hero/stream-gateway/pkg/event"
	"github.com/84hero/stream-gateway/pkg/signature"
	"github.com/84hero/stream-gateway/pkg/storage"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SignatureHeader carries the provider's hex digest of the raw body.
const SignatureHeader = "x-signature"

// state tracks one webhook request through the ingestion pipeline.
type state string

const (
	stateReceived    state = "received"
	stateVerified    state = "verified"
	stateNormalized  state = "normalized"
	stateDispatching state = "dispatching"
	stateComplete    state = "complete"
	stateRejected    state = "rejected"
)

type Config struct {
	Secret       string
	MaxBodyBytes int64

	// DispatchBudget bounds background fan-out (including retries) for the
	// events of one request. Independent of the inbound connection: the
	// provider is acknowledged on receipt, not on sink completion.
	DispatchBudget time.Duration
}

// Server is the webhook ingestion gateway: verify, normalize, dedup,
// dispatch.
type Server struct {
	cfg        Config
	secret     []byte
	store      storage.SeenStore
	dispatcher *dispatch.Dispatcher

	bg sync.WaitGroup
}

func New(cfg Config, store storage.SeenStore, dispatcher *dispatch.Dispatcher) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.DispatchBudget <= 0 {
		cfg.DispatchBudget = 2 * time.Minute
	}
	return &Server{
		cfg:        cfg,
		secret:     []byte(cfg.Secret),
		store:      store,
		dispatcher: dispatcher,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", s.handleWebhook)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type webhookResponse struct {
	Status     string `json:"status"`
	Received   int    `json:"received"`
	Duplicates int    `json:"duplicates"`
	Dispatched int    `json:"dispatched"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	st := stateReceived
	advance := func(next state) {
		st = next
		log.Debug("Webhook state", "state", st)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.reject(w, http.StatusBadRequest, "body read failed", err)
		return
	}

	// Authentication first: nothing attacker-controlled reaches the JSON
	// parser without a valid signature.
	if err := signature.Verify(body, r.Header.Get(SignatureHeader), s.secret); err != nil {
		metrics.WebhooksReceived.WithLabelValues("unauthorized").Inc()
		s.reject(w, http.StatusForbidden, "signature verification failed", err)
		return
	}
	advance(stateVerified)

	events, err := event.Normalize(body, time.Now().UTC())
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("malformed").Inc()
		s.reject(w, http.StatusBadRequest, "payload normalization failed", err)
		return
	}
	advance(stateNormalized)
	metrics.EventsNormalized.Add(float64(len(events)))

	var fresh []event.TransferEvent
	for _, ev := range events {
		first, err := s.store.FirstSeen(r.Context(), ev.TransactionHash)
		if err != nil {
			// Fail open: a duplicate notification beats a dropped one
			metrics.DedupErrors.Inc()
			log.Error("Dedup store error, treating as first-seen", "tx", ev.TransactionHash, "err", err)
			first = true
		}
		if !first {
			metrics.DuplicatesSkipped.Inc()
			log.Debug("Duplicate event skipped", "tx", ev.TransactionHash)
			continue
		}
		fresh = append(fresh, ev)
	}

	if len(fresh) > 0 {
		advance(stateDispatching)
		for _, ev := range fresh {
			s.bg.Add(1)
			go func(ev event.TransferEvent) {
				defer s.bg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchBudget)
				defer cancel()
				s.dispatcher.Dispatch(ctx, ev)
			}(ev)
		}
	}

	advance(stateComplete)
	metrics.WebhooksReceived.WithLabelValues("ok").Inc()
	log.Info("Webhook handled", "state", st, "events", len(events), "dispatched", len(fresh), "duplicates", len(events)-len(fresh))

	writeJSON(w, http.StatusOK, webhookResponse{
		Status:     "ok",
		Received:   len(events),
		Duplicates: len(events) - len(fresh),
		Dispatched: len(fresh),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reject terminates the request before dispatch. Auth and parse failures are
// the only paths that surface an error status to the provider.
func (s *Server) reject(w http.ResponseWriter, code int, reason string, err error) {
	log.Warn("Webhook rejected", "state", stateRejected, "reason", reason, "err", err)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		code = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, code, map[string]string{"status": "rejected", "reason": reason})
}

// Drain blocks until in-flight background deliveries finish or the timeout
// elapses. Called during shutdown.
func (s *Server) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
