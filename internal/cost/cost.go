// Package cost records external API usage against per-service daily budgets.
package cost

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Service names with known pricing.
const (
	ServiceOpenAI    = "openai"
	ServiceAnthropic = "anthropic"
	ServiceChroma    = "chroma"
)

// Usage is one billable call to an external capability.
type Usage struct {
	UserID        int64     `json:"user_id,omitempty"`
	Service       string    `json:"service"`
	Endpoint      string    `json:"endpoint"`
	TokensUsed    int64     `json:"tokens_used"`
	EstimatedCost float64   `json:"estimated_cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary aggregates usage for one service.
type Summary struct {
	Service      string  `json:"service"`
	TotalCost    float64 `json:"total_cost"`
	TotalTokens  int64   `json:"total_tokens"`
	RequestCount int64   `json:"request_count"`
}

// Tracker accepts usage reports.
type Tracker interface {
	TrackUsage(ctx context.Context, u Usage) error
}

// Sink persists usage and answers aggregate queries.
type Sink interface {
	RecordUsage(ctx context.Context, u Usage) error
	CostSince(ctx context.Context, service string, since time.Time) (float64, error)
	UserUsage(ctx context.Context, userID int64, since time.Time) ([]Summary, error)
}

type price struct{ input, output float64 }

var pricing = map[string]price{
	ServiceOpenAI:    {input: 0.0000015, output: 0.000002},
	ServiceAnthropic: {input: 0.000015, output: 0.000075},
}

// EstimateCost prices tokens for service, split evenly between input and
// output. Vector store calls are priced per character of text.
func EstimateCost(service string, tokens int64) float64 {
	if service == ServiceChroma {
		return float64(tokens) * 0.0000001
	}
	p, ok := pricing[service]
	if !ok {
		return 0
	}
	half := float64(tokens) / 2
	return half*p.input + half*p.output
}

// DefaultBudgets are the daily limits in USD.
func DefaultBudgets() map[string]float64 {
	return map[string]float64{
		ServiceOpenAI:    20,
		ServiceAnthropic: 20,
		ServiceChroma:    5,
	}
}

// Ledger records usage into a Sink and warns when a service exceeds its
// daily budget. Exceeding a budget is never an error.
type Ledger struct {
	sink    Sink
	enabled bool
	budgets map[string]float64
	logger  *slog.Logger
	now     func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithBudgets overrides daily budgets per service.
func WithBudgets(b map[string]float64) LedgerOption {
	return func(l *Ledger) {
		for k, v := range b {
			l.budgets[k] = v
		}
	}
}

// WithEnabled toggles recording. A disabled ledger drops every report.
func WithEnabled(on bool) LedgerOption {
	return func(l *Ledger) { l.enabled = on }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = lg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger writing to sink.
func NewLedger(sink Sink, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		sink:    sink,
		enabled: true,
		budgets: DefaultBudgets(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.logger = l.logger.With("component", "cost")
	return l
}

// TrackUsage records u and checks today's spend for its service.
func (l *Ledger) TrackUsage(ctx context.Context, u Usage) error {
	if !l.enabled {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = l.now()
	}
	if u.EstimatedCost == 0 && u.TokensUsed > 0 {
		u.EstimatedCost = EstimateCost(u.Service, u.TokensUsed)
	}
	if err := l.sink.RecordUsage(ctx, u); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	budget, ok := l.budgets[u.Service]
	if !ok {
		return nil
	}
	spent, err := l.TodaysCost(ctx, u.Service)
	if err != nil {
		return err
	}
	if spent >= budget {
		l.logger.Error("daily budget exceeded", "service", u.Service, "spent", spent, "budget", budget)
	}
	return nil
}

// TodaysCost sums service spend since local midnight.
func (l *Ledger) TodaysCost(ctx context.Context, service string) (float64, error) {
	now := l.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	total, err := l.sink.CostSince(ctx, service, start)
	if err != nil {
		return 0, fmt.Errorf("today's cost for %s: %w", service, err)
	}
	return total, nil
}

// UserUsage summarizes userID's usage over the last days days.
func (l *Ledger) UserUsage(ctx context.Context, userID int64, days int) ([]Summary, error) {
	if days <= 0 {
		days = 30
	}
	return l.sink.UserUsage(ctx, userID, l.now().AddDate(0, 0, -days))
}

// MemorySink keeps usage in process memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Usage
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) RecordUsage(_ context.Context, u Usage) error {
	m.mu.Lock()
	m.records = append(m.records, u)
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) CostSince(_ context.Context, service string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, r := range m.records {
		if r.Service == service && !r.CreatedAt.Before(since) {
			total += r.EstimatedCost
		}
	}
	return total, nil
}

func (m *MemorySink) UserUsage(_ context.Context, userID int64, since time.Time) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	by := map[string]*Summary{}
	for _, r := range m.records {
		if r.UserID != userID || r.CreatedAt.Before(since) {
			continue
		}
		s, ok := by[r.Service]
		if !ok {
			s = &Summary{Service: r.Service}
			by[r.Service] = s
		}
		s.TotalCost += r.EstimatedCost
		s.TotalTokens += r.TokensUsed
		s.RequestCount++
	}
	out := make([]Summary, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// Records returns a copy of everything recorded.
func (m *MemorySink) Records() []Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Usage, len(m.records))
	copy(out, m.records)
	return out
}

// Nop discards every report.
type Nop struct{}

func (Nop) TrackUsage(context.Context, Usage) error { return nil }
