package dispatch

import (
	"context"
	"time"

	"github.com/84hero/stream-gateway/internal/metrics"
	"github.com/84hero/stream-gateway/pkg/event"
	"github.com/84hero/stream-gateway/pkg/sink"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"
)

type Config struct {
	// Retry policy for transient sink failures
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Timeout bounds a single delivery attempt
	Timeout time.Duration

	// RateLimit caps deliveries per second per sink; 0 means unlimited.
	// Chat and social APIs throttle aggressively, so the default burst is 1.
	RateLimit float64
	RateBurst int
}

// Result records the outcome of delivering one event to one sink.
type Result struct {
	Sink      string
	Attempts  int
	Delivered bool
	Err       error
}

// DeliveryReport collects per-sink outcomes for one event. A failed sink
// never fails the event as a whole; callers inspect the report.
type DeliveryReport struct {
	TransactionHash string
	Results         []Result
}

// Failed returns the subset of results that did not deliver.
func (r DeliveryReport) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Delivered {
			failed = append(failed, res)
		}
	}
	return failed
}

// Dispatcher fans one normalized event out to every configured sink,
// isolating failures and retrying transient ones with bounded backoff.
type Dispatcher struct {
	sinks    []sink.Sink
	cfg      Config
	limiters map[string]*rate.Limiter
}

func New(cfg Config, sinks ...sink.Sink) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	limiters := make(map[string]*rate.Limiter)
	if cfg.RateLimit > 0 {
		for _, s := range sinks {
			limiters[s.Name()] = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
		}
	}

	return &Dispatcher{sinks: sinks, cfg: cfg, limiters: limiters}
}

// Sinks returns the configured sink set.
func (d *Dispatcher) Sinks() []sink.Sink {
	return d.sinks
}

// Dispatch delivers ev to every sink concurrently and blocks until all
// outcomes are known. Sinks never see each other's errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.TransferEvent) DeliveryReport {
	report := DeliveryReport{
		TransactionHash: ev.TransactionHash,
		Results:         make([]Result, len(d.sinks)),
	}

	done := make(chan struct{})
	for i, s := range d.sinks {
		go func(i int, s sink.Sink) {
			report.Results[i] = d.deliverOne(ctx, s, ev)
			done <- struct{}{}
		}(i, s)
	}
	for range d.sinks {
		<-done
	}

	for _, res := range report.Results {
		if res.Delivered {
			log.Debug("Sink delivered", "sink", res.Sink, "tx", ev.TransactionHash, "attempts", res.Attempts)
		} else {
			log.Warn("Sink delivery failed", "sink", res.Sink, "tx", ev.TransactionHash, "attempts", res.Attempts, "err", res.Err)
		}
	}
	return report
}

func (d *Dispatcher) deliverOne(ctx context.Context, s sink.Sink, ev event.TransferEvent) Result {
	res := Result{Sink: s.Name()}
	start := time.Now()
	defer func() {
		outcome := "failed"
		if res.Delivered {
			outcome = "delivered"
		}
		metrics.SinkDeliveries.WithLabelValues(res.Sink, outcome).Inc()
		metrics.DeliveryDuration.WithLabelValues(res.Sink).Observe(time.Since(start).Seconds())
	}()

	msg, err := s.Format(ev)
	if err != nil {
		// Formatting is pure; a failure here can never be transient
		res.Err = err
		return res
	}

	backoff := d.cfg.InitialBackoff
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Err = ctx.Err()
				return res
			case <-timer.C:
			}
			backoff *= 2
			if backoff > d.cfg.MaxBackoff {
				backoff = d.cfg.MaxBackoff
			}
		}

		if lim, ok := d.limiters[res.Sink]; ok {
			if err := lim.Wait(ctx); err != nil {
				res.Err = err
				return res
			}
		}

		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		err := s.Deliver(attemptCtx, msg)
		cancel()

		if err == nil {
			res.Delivered = true
			res.Err = nil
			return res
		}
		res.Err = err

		if sink.IsPermanent(err) || ctx.Err() != nil {
			return res
		}
		// Timeout on the attempt context counts as transient; retry
	}
	return res
}

// Close releases every sink.
func (d *Dispatcher) Close() {
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			log.Warn("Sink close failed", "sink", s.Name(), "err", err)
		}
	}
}
