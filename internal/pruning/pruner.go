// Package pruning applies retention policies and relevance decay to user
// memories.
package pruning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
)

// ErrPruningInProgress is returned when a user is already being pruned.
var ErrPruningInProgress = errors.New("pruning already in progress")

const scheduleInterval = 24 * time.Hour

// Memories is the subset of memory.Core the pruner mutates.
type Memories interface {
	Memories(ctx context.Context, userID int64) ([]model.MemoryChunk, error)
	Delete(ctx context.Context, id string) error
	Compress(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Flag(ctx context.Context, id string) error
}

var _ Memories = (*memory.Core)(nil)

// RedundancyDetector reports whether m duplicates another memory at the
// given similarity threshold.
type RedundancyDetector interface {
	Redundant(ctx context.Context, m model.MemoryChunk, threshold float64) bool
}

// NoRedundancy never reports redundancy.
type NoRedundancy struct{}

func (NoRedundancy) Redundant(context.Context, model.MemoryChunk, float64) bool { return false }

// Stats summarizes the pruner.
type Stats struct {
	LastRun        time.Time `json:"last_run,omitempty"`
	Policies       int       `json:"policies"`
	ActivePolicies int       `json:"active_policies"`
	NextScheduled  time.Time `json:"next_scheduled"`
}

// Pruner runs retention policies.
type Pruner struct {
	mem       Memories
	redundant RedundancyDetector
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.RWMutex
	policies map[string]model.PruningPolicy
	decay    model.DecayConfig
	lastRun  time.Time
	requests map[int64]map[string]bool

	flight   sync.Mutex
	inFlight map[int64]bool
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithPolicies replaces the default policies.
func WithPolicies(ps ...model.PruningPolicy) Option {
	return func(p *Pruner) {
		p.policies = make(map[string]model.PruningPolicy, len(ps))
		for _, pol := range ps {
			p.policies[pol.ID] = pol
		}
	}
}

// WithDecayConfig sets the relevance decay tuning.
func WithDecayConfig(c model.DecayConfig) Option {
	return func(p *Pruner) { p.decay = c }
}

// WithRedundancyDetector installs a redundancy detector.
func WithRedundancyDetector(d RedundancyDetector) Option {
	return func(p *Pruner) {
		if d != nil {
			p.redundant = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// New creates a Pruner over mem with the default policies.
func New(mem Memories, opts ...Option) *Pruner {
	p := &Pruner{
		mem:       mem,
		redundant: NoRedundancy{},
		now:       time.Now,
		logger:    slog.Default(),
		decay:     model.DefaultDecayConfig(),
		requests:  make(map[int64]map[string]bool),
		inFlight:  make(map[int64]bool),
	}
	WithPolicies(DefaultPolicies()...)(p)
	for _, fn := range opts {
		fn(p)
	}
	p.logger = p.logger.With("component", "pruning")
	return p
}

// AddPolicy adds or replaces a policy.
func (p *Pruner) AddPolicy(pol model.PruningPolicy) error {
	if err := ValidatePolicy(pol); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies[pol.ID] = pol
	return nil
}

// RemovePolicy deletes a policy and reports whether it existed.
func (p *Pruner) RemovePolicy(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.policies[id]
	delete(p.policies, id)
	return ok
}

// Policies returns every policy ordered by priority, then id.
func (p *Pruner) Policies() []model.PruningPolicy {
	p.mu.RLock()
	out := make([]model.PruningPolicy, 0, len(p.policies))
	for _, pol := range p.policies {
		out = append(out, pol)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// DecayConfig returns the current decay tuning.
func (p *Pruner) DecayConfig() model.DecayConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.decay
}

// UpdateDecayConfig replaces the decay tuning.
func (p *Pruner) UpdateDecayConfig(c model.DecayConfig) error {
	if err := ValidateDecayFunction(c.DecayFunction); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decay = c
	return nil
}

// RequestDeletion marks memories for removal by user_request rules.
func (p *Pruner) RequestDeletion(userID int64, ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.requests[userID]
	if set == nil {
		set = make(map[string]bool)
		p.requests[userID] = set
	}
	for _, id := range ids {
		set[id] = true
	}
}

func (p *Pruner) requested(m model.MemoryChunk) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requests[m.UserID][m.ID]
}

// DecayFactor returns the multiplier for a memory of the given age in days.
func DecayFactor(c model.DecayConfig, days float64) float64 {
	switch c.DecayFunction {
	case model.DecayLinear:
		return math.Max(0, 1-days*c.BaseDecayRate)
	case model.DecayLogarithmic:
		return math.Max(0, 1-math.Log(days+1)*c.BaseDecayRate)
	default:
		return math.Exp(-days * c.BaseDecayRate)
	}
}

// ApplyRelevanceDecay returns copies of memories with importance decayed by
// age. Memories carrying a context id or tags get additive boosts scaled by
// the same factor; the result is clamped to [0,1].
func (p *Pruner) ApplyRelevanceDecay(memories []model.MemoryChunk) []model.MemoryChunk {
	c := p.DecayConfig()
	now := p.now()
	out := make([]model.MemoryChunk, len(memories))
	for i, m := range memories {
		days := math.Max(0, m.Age(now).Hours()/24)
		f := DecayFactor(c, days)
		imp := m.Metadata.Importance * f
		if m.Metadata.ContextID != "" {
			imp += c.ContextualBoost * f
		}
		if len(m.Metadata.Tags) > 0 {
			imp += c.InteractionBoost * f
		}
		m.Metadata.Importance = model.Clamp01(imp)
		out[i] = m
	}
	return out
}

// EvaluateRule reports whether rule matches m.
func (p *Pruner) EvaluateRule(ctx context.Context, rule model.PruningRule, m model.MemoryChunk) bool {
	switch rule.Type {
	case model.RuleAge:
		age := float64(m.Age(p.now()).Milliseconds())
		return compare(age, rule.Condition)
	case model.RuleRelevance:
		return compare(m.Metadata.Importance, rule.Condition)
	case model.RuleSize:
		return compare(float64(len(m.Content)), rule.Condition)
	case model.RuleRedundancy:
		return p.redundant.Redundant(ctx, m, rule.Condition.Value)
	case model.RuleUserRequest:
		return p.requested(m)
	}
	return false
}

func compare(actual float64, c model.RuleCondition) bool {
	switch c.Operator {
	case model.OpGT:
		return actual > c.Value
	case model.OpLT:
		return actual < c.Value
	case model.OpEQ:
		return actual == c.Value
	case model.OpContains, model.OpNotContains:
		want := c.Text
		if want == "" {
			want = strconv.FormatFloat(c.Value, 'f', -1, 64)
		}
		has := strings.Contains(strconv.FormatFloat(actual, 'f', -1, 64), want)
		return has == (c.Operator == model.OpContains)
	}
	return false
}

// ApplyPolicy runs one policy over memories. For each memory only the first
// matching rule acts.
func (p *Pruner) ApplyPolicy(ctx context.Context, pol model.PruningPolicy, memories []model.MemoryChunk) model.PruningResult {
	var res model.PruningResult
	p.applyPolicy(ctx, pol, memories, map[string]bool{}, &res)
	res.Processed = len(memories)
	return res
}

// applyPolicy skips memories already deleted in this run and records new
// deletions in gone.
func (p *Pruner) applyPolicy(ctx context.Context, pol model.PruningPolicy, memories []model.MemoryChunk, gone map[string]bool, res *model.PruningResult) {
	for _, m := range memories {
		if gone[m.ID] {
			continue
		}
		for _, rule := range pol.Rules {
			if !p.EvaluateRule(ctx, rule, m) {
				continue
			}
			if err := p.act(ctx, rule.Action, m.ID, res); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("policy %s memory %s: %v", pol.ID, m.ID, err))
				p.logger.Warn("pruning action failed", "policy", pol.ID, "memory_id", m.ID, "action", rule.Action, "err", err)
			} else if rule.Action == model.ActionDelete {
				gone[m.ID] = true
			}
			break
		}
	}
}

func (p *Pruner) act(ctx context.Context, a model.Action, id string, res *model.PruningResult) error {
	switch a {
	case model.ActionDelete:
		if err := p.mem.Delete(ctx, id); err != nil {
			return err
		}
		res.Deleted++
	case model.ActionCompress:
		if err := p.mem.Compress(ctx, id); err != nil {
			return err
		}
		res.Compressed++
	case model.ActionArchive:
		if err := p.mem.Archive(ctx, id); err != nil {
			return err
		}
		res.Archived++
	case model.ActionFlag:
		if err := p.mem.Flag(ctx, id); err != nil {
			return err
		}
		res.Flagged++
	default:
		return fmt.Errorf("unknown action %q", a)
	}
	return nil
}

func (p *Pruner) acquire(userID int64) bool {
	p.flight.Lock()
	defer p.flight.Unlock()
	if p.inFlight[userID] {
		return false
	}
	p.inFlight[userID] = true
	return true
}

func (p *Pruner) release(userID int64) {
	p.flight.Lock()
	delete(p.inFlight, userID)
	p.flight.Unlock()
}

// PruneUserMemories decays a user's memories and applies every enabled
// policy in priority order. A second call for the same user while one is
// running fails with ErrPruningInProgress.
func (p *Pruner) PruneUserMemories(ctx context.Context, userID int64) (model.PruningResult, error) {
	if !p.acquire(userID) {
		return model.PruningResult{}, fmt.Errorf("prune user %d: %w", userID, ErrPruningInProgress)
	}
	defer p.release(userID)

	start := time.Now()
	memories, err := p.mem.Memories(ctx, userID)
	if err != nil {
		return model.PruningResult{}, fmt.Errorf("prune user %d: %w", userID, err)
	}
	decayed := p.ApplyRelevanceDecay(memories)

	res := model.PruningResult{Processed: len(decayed)}
	gone := make(map[string]bool)
	for _, pol := range p.Policies() {
		if !pol.Enabled {
			continue
		}
		p.applyPolicy(ctx, pol, decayed, gone, &res)
	}

	p.mu.Lock()
	for id := range gone {
		delete(p.requests[userID], id)
	}
	if len(p.requests[userID]) == 0 {
		delete(p.requests, userID)
	}
	p.lastRun = p.now()
	res.NextSchedule = p.lastRun.Add(scheduleInterval)
	p.mu.Unlock()

	res.ProcessingTime = time.Since(start)
	p.logger.Info("pruning completed", "user_id", userID, "processed", res.Processed,
		"deleted", res.Deleted, "compressed", res.Compressed, "archived", res.Archived,
		"flagged", res.Flagged, "errors", len(res.Errors))
	return res, nil
}

// Stats reports policy counts and schedule.
func (p *Pruner) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Stats{LastRun: p.lastRun, Policies: len(p.policies)}
	for _, pol := range p.policies {
		if pol.Enabled {
			st.ActivePolicies++
		}
	}
	if p.lastRun.IsZero() {
		st.NextScheduled = p.now()
	} else {
		st.NextScheduled = p.lastRun.Add(scheduleInterval)
	}
	return st
}
