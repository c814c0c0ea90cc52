package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/spacedlevo/prediction-league-scripts-sub001/internal/sched"
	logx "github.com/spacedlevo/prediction-league-scripts-sub001/pkg/logx"
)

// Config controls Telegram failure alerts.
type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	ThreadID   int
	QueueSize  int
	RatePerSec int
}

// Sender is the subset of *tele.Bot the service needs; tests substitute a fake.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Service pushes failed/timed-out run results to a Telegram chat.
//
// Enqueueing never blocks the scheduler: when the queue is full, alerts are
// dropped and counted. Sends are rate-limited so a misconfigured tick can't
// produce an alert storm.
type Service struct {
	log      logx.Logger
	sender   Sender
	chat     tele.ChatID
	threadID int
	limiter  *rate.Limiter
	queue    chan sched.RunResult
	dropped  atomic.Uint64
}

// New creates the alert service, or (nil, nil) when alerting is disabled.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify chat_id is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newWithSender(cfg, bot, log), nil
}

func newWithSender(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = 64
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		log:      log,
		sender:   sender,
		chat:     tele.ChatID(cfg.ChatID),
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		queue:    make(chan sched.RunResult, qs),
	}
}

// Observe enqueues every alertable result from a tick. Safe on a nil service.
func (s *Service) Observe(rep sched.Report) {
	if s == nil {
		return
	}
	for _, r := range rep.Results {
		if !r.Outcome.Failure() {
			continue
		}
		select {
		case s.queue <- r:
		default:
			s.dropped.Add(1)
		}
	}
	if n := s.dropped.Swap(0); n > 0 {
		s.log.Warn("alerts dropped (queue full)", logx.Int64("count", int64(n)))
	}
}

// Worker drains the queue until ctx is canceled. Run it under the supervisor
// in daemon mode.
func (s *Service) Worker(ctx context.Context) {
	if s == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.queue:
			s.send(ctx, r)
		}
	}
}

// Flush synchronously delivers everything currently queued. One-shot ticks
// call this before exiting so alerts aren't lost with the process.
func (s *Service) Flush(ctx context.Context) {
	if s == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.queue:
			s.send(ctx, r)
		default:
			return
		}
	}
}

func (s *Service) send(ctx context.Context, r sched.RunResult) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	msg := formatResult(r)
	_, err := s.sender.Send(s.chat, msg, &tele.SendOptions{ThreadID: s.threadID})
	if err != nil {
		s.log.Warn("alert send failed", logx.String("job", r.Job), logx.Err(err))
	}
}

func formatResult(r sched.RunResult) string {
	var b strings.Builder
	switch r.Outcome {
	case sched.OutcomeTimedOut:
		fmt.Fprintf(&b, "⏱ job %s timed out after %s", r.Job, r.Duration.Round(time.Millisecond))
	case sched.OutcomeFailed:
		fmt.Fprintf(&b, "❌ job %s failed (exit %d) after %s", r.Job, r.ExitCode, r.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(&b, "⚠️ job %s: %s", r.Job, r.Outcome)
	}
	if r.Err != "" {
		b.WriteString("\n")
		b.WriteString(truncate(r.Err, 400))
	}
	if tail := strings.TrimSpace(r.OutputTail); tail != "" {
		b.WriteString("\n--- output ---\n")
		b.WriteString(truncate(tail, 1500))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
