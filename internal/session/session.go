// Package session tracks user sessions and ranks the memories relevant to them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/brightmatter/internal/history"
	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultWindowMinutes     = 30
	DefaultMaxActiveContexts = 5
	DefaultSwitchThreshold   = 0.3
	DefaultLookback          = 24 * time.Hour

	ShortTermWeight = 0.7
	LongTermWeight  = 0.3

	historySize       = 100
	eagerLoadLimit    = 20
	longTermLoadLimit = 50
)

// Horizon selects the temporal decay used by CalculateRelevanceScore.
type Horizon int

const (
	ShortTerm Horizon = iota
	LongTerm
)

// decay time constants per horizon.
var decayScale = map[Horizon]time.Duration{
	ShortTerm: time.Hour,
	LongTerm:  24 * time.Hour,
}

// Memories is the subset of memory.Core a Manager needs.
type Memories interface {
	StoreInteraction(ctx context.Context, chunk model.MemoryChunk) (string, error)
	RetrieveMemories(ctx context.Context, q model.MemoryQuery) (model.RetrievalResult, error)
}

var _ Memories = (*memory.Core)(nil)

// SwitchDetector decides whether an activity moves a session to a new topic.
type SwitchDetector interface {
	Detect(ctx context.Context, s model.SessionContext, act model.Activity) bool
}

// NoopSwitchDetector never reports a switch.
type NoopSwitchDetector struct{}

func (NoopSwitchDetector) Detect(context.Context, model.SessionContext, model.Activity) bool {
	return false
}

// NewSessionID returns a random session id.
func NewSessionID() string { return uuid.NewString() }

// Manager owns the active sessions.
type Manager struct {
	mem             Memories
	detector        SwitchDetector
	windowMinutes   int
	maxActive       int
	switchThreshold float64
	now             func() time.Time
	logger          *slog.Logger

	mu       sync.Mutex
	active   map[string]*model.SessionContext
	switches map[string]int
	history  *history.Keyed[int64, *model.SessionContext]
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the sliding window in minutes.
func WithWindow(minutes int) Option {
	return func(m *Manager) {
		if minutes > 0 {
			m.windowMinutes = minutes
		}
	}
}

// WithMaxActiveContexts caps merged results.
func WithMaxActiveContexts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithSwitchThreshold is passed through for detectors that need it.
func WithSwitchThreshold(v float64) Option {
	return func(m *Manager) { m.switchThreshold = v }
}

// WithSwitchDetector installs a context-switch detector.
func WithSwitchDetector(d SwitchDetector) Option {
	return func(m *Manager) {
		if d != nil {
			m.detector = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager backed by mem.
func NewManager(mem Memories, opts ...Option) *Manager {
	m := &Manager{
		mem:             mem,
		detector:        NoopSwitchDetector{},
		windowMinutes:   DefaultWindowMinutes,
		maxActive:       DefaultMaxActiveContexts,
		switchThreshold: DefaultSwitchThreshold,
		now:             time.Now,
		logger:          slog.Default(),
		active:          make(map[string]*model.SessionContext),
		switches:        make(map[string]int),
		history:         history.NewKeyed[int64, *model.SessionContext](historySize),
	}
	for _, fn := range opts {
		fn(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// SwitchThreshold returns the configured context-switch threshold.
func (m *Manager) SwitchThreshold() float64 { return m.switchThreshold }

func validContextType(t model.InteractionType) bool {
	return t == model.InteractionGeneral || model.ValidInteractionTypes[t]
}

func (m *Manager) window() time.Duration {
	return time.Duration(m.windowMinutes) * time.Minute
}

// CreateSessionContext starts a session and eagerly loads the user's
// memories of contextType from the last window. An empty sessionID gets a
// generated one. Creating an existing id replaces it.
func (m *Manager) CreateSessionContext(ctx context.Context, sessionID string, userID int64, contextType model.InteractionType, metadata map[string]any) (*model.SessionContext, error) {
	if contextType == "" {
		contextType = model.InteractionGeneral
	}
	if !validContextType(contextType) {
		return nil, fmt.Errorf("create session: invalid context type %q", contextType)
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	now := m.now()

	q := model.MemoryQuery{
		UserID: userID,
		Query:  string(contextType),
		Since:  now.Add(-m.window()),
		Until:  now,
		Limit:  eagerLoadLimit,
	}
	if contextType != model.InteractionGeneral {
		q.InteractionType = contextType
	}
	res, err := m.mem.RetrieveMemories(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sc := &model.SessionContext{
		SessionID:      sessionID,
		UserID:         userID,
		StartTime:      now,
		LastActivity:   now,
		WindowSize:     m.windowMinutes,
		ActiveMemories: res.Chunks,
		ContextType:    contextType,
		RelevanceScore: 1.0,
		Metadata:       metadata,
	}
	if sc.ActiveMemories == nil {
		sc.ActiveMemories = []model.MemoryChunk{}
	}

	m.mu.Lock()
	m.active[sessionID] = sc
	delete(m.switches, sessionID)
	out := clone(sc)
	m.mu.Unlock()
	m.history.Append(userID, sc)

	m.logger.Debug("session created", "session_id", sessionID, "user_id", userID, "context", contextType, "memories", len(out.ActiveMemories))
	return out, nil
}

// Session returns a snapshot of an active session.
func (m *Manager) Session(sessionID string) (*model.SessionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.active[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return clone(sc), nil
}

// UpdateSessionActivity records act in the session, stores its content as a
// memory, slides the window and runs the switch detector.
func (m *Manager) UpdateSessionActivity(ctx context.Context, sessionID string, act model.Activity) (*model.SessionContext, error) {
	snap, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var stored *model.MemoryChunk
	if act.Content != "" {
		typ := act.InteractionType
		if typ == "" {
			typ = snap.ContextType
		}
		if !model.ValidInteractionTypes[typ] {
			typ = model.InteractionTask
		}
		importance := act.Importance
		if importance == 0 {
			importance = 0.5
		}
		chunk := model.MemoryChunk{
			UserID:  snap.UserID,
			Content: act.Content,
			Metadata: model.ChunkMeta{
				Timestamp:       m.now(),
				InteractionType: typ,
				ContextID:       sessionID,
				Importance:      importance,
				Tags:            append([]string{}, act.Tags...),
			},
		}
		id, err := m.mem.StoreInteraction(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("update session %s: %w", sessionID, err)
		}
		chunk.ID = id
		stored = &chunk
	}

	switched := m.detector.Detect(ctx, *snap, act)

	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.active[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	now := m.now()
	sc.LastActivity = now
	if stored != nil {
		sc.ActiveMemories = append(sc.ActiveMemories, *stored)
	}
	slide(sc, now)
	if switched {
		m.switches[sessionID]++
		m.logger.Info("context switch detected", "session_id", sessionID)
	}
	return clone(sc), nil
}

// slide drops active memories older than the session window.
func slide(sc *model.SessionContext, now time.Time) {
	start := now.Add(-sc.Window())
	kept := sc.ActiveMemories[:0]
	for _, mc := range sc.ActiveMemories {
		if !mc.Metadata.Timestamp.Before(start) {
			kept = append(kept, mc)
		}
	}
	sc.ActiveMemories = kept
}

// MergeContextMemories ranks the session's active memories together with the
// user's older memories from the lookback period. Short-term relevance is
// weighted by 0.7 and long-term by 0.3; the top entries are returned.
func (m *Manager) MergeContextMemories(ctx context.Context, sessionID string, lookback time.Duration) (model.ContextMergeResult, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	snap, err := m.Session(sessionID)
	if err != nil {
		return model.ContextMergeResult{}, err
	}
	now := m.now()
	long, err := m.mem.RetrieveMemories(ctx, model.MemoryQuery{
		UserID: snap.UserID,
		Query:  string(snap.ContextType),
		Since:  now.Add(-lookback),
		Until:  now.Add(-m.window()),
		Limit:  longTermLoadLimit,
	})
	if err != nil {
		return model.ContextMergeResult{}, fmt.Errorf("merge session %s: %w", sessionID, err)
	}

	type ranked struct {
		model.ScoredMemory
		relevance float64
	}
	all := make([]ranked, 0, len(snap.ActiveMemories)+len(long.Chunks))
	for _, mc := range snap.ActiveMemories {
		r := m.CalculateRelevanceScore(mc, snap.ContextType, ShortTerm)
		all = append(all, ranked{model.ScoredMemory{Memory: mc, Score: r * ShortTermWeight}, r})
	}
	for _, mc := range long.Chunks {
		r := m.CalculateRelevanceScore(mc, snap.ContextType, LongTerm)
		all = append(all, ranked{model.ScoredMemory{Memory: mc, Score: r * LongTermWeight}, r})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > m.maxActive {
		all = all[:m.maxActive]
	}

	res := model.ContextMergeResult{
		ShortTerm:       snap.ActiveMemories,
		LongTerm:        long.Chunks,
		ShortTermWeight: ShortTermWeight,
		LongTermWeight:  LongTermWeight,
		Merged:          make([]model.ScoredMemory, len(all)),
		RelevanceScores: make([]float64, len(all)),
	}
	for i, r := range all {
		res.Merged[i] = r.ScoredMemory
		res.RelevanceScores[i] = r.relevance
	}
	m.mu.Lock()
	res.ContextSwitches = m.switches[sessionID]
	m.mu.Unlock()
	return res, nil
}

// CalculateRelevanceScore combines temporal decay (0.3), a context-type
// match (0.4), stored importance (0.2) and whether the memory is tagged
// (0.1). The result is within [0,1].
func (m *Manager) CalculateRelevanceScore(mc model.MemoryChunk, contextType model.InteractionType, h Horizon) float64 {
	age := mc.Age(m.now())
	if age < 0 {
		age = 0
	}
	scale, ok := decayScale[h]
	if !ok {
		scale = decayScale[LongTerm]
	}
	temporal := math.Exp(-float64(age) / float64(scale))

	semantic := 0.3
	if mc.Metadata.InteractionType == contextType {
		semantic = 0.8
	}
	behavioral := 0.4
	if len(mc.Metadata.Tags) > 0 {
		behavioral = 0.6
	}
	score := temporal*0.3 + semantic*0.4 + model.Clamp01(mc.Metadata.Importance)*0.2 + behavioral*0.1
	return model.Clamp01(score)
}

// CleanupExpiredSessions removes sessions idle for more than twice their
// window and returns how many were removed.
func (m *Manager) CleanupExpiredSessions() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sc := range m.active {
		if now.Sub(sc.LastActivity) > 2*sc.Window() {
			delete(m.active, id)
			delete(m.switches, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Info("cleaned up expired sessions", "count", n)
	}
	return n
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ContextStats summarizes a user's current and past sessions.
func (m *Manager) ContextStats(userID int64) model.ContextStats {
	past := m.history.Snapshot(userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	st := model.ContextStats{TotalSessions: len(past), MostUsedContext: model.InteractionGeneral}
	for _, sc := range m.active {
		if sc.UserID == userID {
			st.ActiveContexts++
		}
	}
	if len(past) == 0 {
		return st
	}

	var total time.Duration
	var order []model.InteractionType
	counts := make(map[model.InteractionType]int)
	for _, sc := range past {
		total += sc.LastActivity.Sub(sc.StartTime)
		if counts[sc.ContextType] == 0 {
			order = append(order, sc.ContextType)
		}
		counts[sc.ContextType]++
	}
	best := 0
	for _, t := range order {
		if counts[t] > best {
			best = counts[t]
			st.MostUsedContext = t
		}
	}
	st.AverageSessionDuration = total / time.Duration(len(past))
	return st
}

func clone(sc *model.SessionContext) *model.SessionContext {
	out := *sc
	out.ActiveMemories = append([]model.MemoryChunk{}, sc.ActiveMemories...)
	return &out
}
