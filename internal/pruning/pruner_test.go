package pruning

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func aged(id string, age time.Duration, importance float64) model.MemoryChunk {
	return model.MemoryChunk{
		ID:      id,
		UserID:  1,
		Content: "memory " + id,
		Metadata: model.ChunkMeta{
			Timestamp:       testNow.Add(-age),
			InteractionType: model.InteractionTask,
			Importance:      importance,
		},
	}
}

func newCore(t *testing.T, chunks ...model.MemoryChunk) *memory.Core {
	t.Helper()
	repo := memory.NewMemRepository()
	for _, c := range chunks {
		require.NoError(t, repo.SaveChunk(context.Background(), c))
	}
	core := memory.New(memory.WithRepository(repo), memory.WithClock(fixedClock))
	t.Cleanup(core.Close)
	return core
}

func TestAgeRuleMatches(t *testing.T) {
	p := New(nil, WithClock(fixedClock))
	rule := model.PruningRule{
		Type:      model.RuleAge,
		Condition: model.RuleCondition{Operator: model.OpGT, Value: 91 * day},
		Action:    model.ActionDelete,
	}
	ctx := context.Background()
	assert.True(t, p.EvaluateRule(ctx, rule, aged("old", 95*24*time.Hour, 0.5)))
	assert.False(t, p.EvaluateRule(ctx, rule, aged("new", 10*24*time.Hour, 0.5)))
}

func TestEvaluateRuleOperators(t *testing.T) {
	p := New(nil, WithClock(fixedClock))
	ctx := context.Background()
	m := aged("m", time.Hour, 0.25)
	m.Content = strings.Repeat("x", 120)

	tests := []struct {
		name string
		rule model.PruningRule
		want bool
	}{
		{"relevance lt", model.PruningRule{Type: model.RuleRelevance, Condition: model.RuleCondition{Operator: model.OpLT, Value: 0.3}}, true},
		{"relevance eq", model.PruningRule{Type: model.RuleRelevance, Condition: model.RuleCondition{Operator: model.OpEQ, Value: 0.25}}, true},
		{"size gt", model.PruningRule{Type: model.RuleSize, Condition: model.RuleCondition{Operator: model.OpGT, Value: 100}}, true},
		{"size contains", model.PruningRule{Type: model.RuleSize, Condition: model.RuleCondition{Operator: model.OpContains, Text: "12"}}, true},
		{"size not_contains", model.PruningRule{Type: model.RuleSize, Condition: model.RuleCondition{Operator: model.OpNotContains, Value: 12}}, false},
		{"redundancy default", model.PruningRule{Type: model.RuleRedundancy, Condition: model.RuleCondition{Operator: model.OpGT, Value: 0.9}}, false},
		{"user request unset", model.PruningRule{Type: model.RuleUserRequest, Condition: model.RuleCondition{Operator: model.OpEQ}}, false},
		{"unknown type", model.PruningRule{Type: "mood", Condition: model.RuleCondition{Operator: model.OpGT}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.EvaluateRule(ctx, tt.rule, m))
		})
	}
}

func TestDecayFactorCurves(t *testing.T) {
	c := model.DefaultDecayConfig()
	assert.InDelta(t, math.Exp(-1), DecayFactor(c, 10), 1e-12)

	c.DecayFunction = model.DecayLinear
	assert.InDelta(t, 0.5, DecayFactor(c, 5), 1e-12)
	assert.Zero(t, DecayFactor(c, 20))

	c.DecayFunction = model.DecayLogarithmic
	assert.InDelta(t, 1-math.Log(11)*0.1, DecayFactor(c, 10), 1e-12)
	assert.Equal(t, 1.0, DecayFactor(c, 0))
}

func TestApplyRelevanceDecayBoostsAndClamps(t *testing.T) {
	p := New(nil, WithClock(fixedClock))
	plain := aged("plain", 0, 0.5)
	boosted := aged("boosted", 0, 0.9)
	boosted.Metadata.ContextID = "s1"
	boosted.Metadata.Tags = []string{"t"}
	old := aged("old", 10*24*time.Hour, 0.8)

	out := p.ApplyRelevanceDecay([]model.MemoryChunk{plain, boosted, old})
	assert.Equal(t, 0.5, out[0].Metadata.Importance)
	assert.Equal(t, 1.0, out[1].Metadata.Importance)
	assert.InDelta(t, 0.8*math.Exp(-1), out[2].Metadata.Importance, 1e-12)
	assert.Equal(t, 0.9, boosted.Metadata.Importance, "input must not be mutated")
}

func TestPruneUserMemoriesAppliesDefaultPolicies(t *testing.T) {
	big := aged("big", time.Hour, 0.9)
	big.Content = strings.Repeat("Long post. ", 1000)
	core := newCore(t,
		aged("ancient", 100*24*time.Hour, 0.9),
		aged("faded", 40*24*time.Hour, 0.5),
		aged("fresh", time.Hour, 0.9),
		big,
	)
	p := New(core, WithClock(fixedClock))
	ctx := context.Background()

	res, err := p.PruneUserMemories(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, res.Compressed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, testNow.Add(24*time.Hour), res.NextSchedule)

	left, err := core.Memories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, m := range left {
		if m.ID == "big" {
			assert.True(t, m.Compressed)
			assert.Less(t, len(m.Content), 10000)
		}
	}

	st := p.Stats()
	assert.Equal(t, testNow, st.LastRun)
	assert.Equal(t, 4, st.Policies)
	assert.Equal(t, 3, st.ActivePolicies)
	assert.Equal(t, testNow.Add(24*time.Hour), st.NextScheduled)
}

func TestApplyPolicyFirstMatchingRuleOnly(t *testing.T) {
	core := newCore(t, aged("a", time.Hour, 0.05))
	p := New(core, WithClock(fixedClock))
	pol := model.PruningPolicy{ID: "multi", Enabled: true, Rules: []model.PruningRule{
		{Type: model.RuleRelevance, Condition: model.RuleCondition{Operator: model.OpLT, Value: 0.1}, Action: model.ActionFlag},
		{Type: model.RuleRelevance, Condition: model.RuleCondition{Operator: model.OpLT, Value: 0.2}, Action: model.ActionDelete},
	}}
	mems, err := core.Memories(context.Background(), 1)
	require.NoError(t, err)

	res := p.ApplyPolicy(context.Background(), pol, mems)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Flagged)
	assert.Zero(t, res.Deleted)

	got, err := core.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, got.Flagged)
}

func TestUserRequestRule(t *testing.T) {
	core := newCore(t, aged("keep", time.Hour, 0.9), aged("drop", time.Hour, 0.9))
	p := New(core, WithClock(fixedClock), WithPolicies(model.PruningPolicy{
		ID: "requests", Enabled: true, Priority: 1,
		Rules: []model.PruningRule{{Type: model.RuleUserRequest, Condition: model.RuleCondition{Operator: model.OpEQ}, Action: model.ActionArchive}},
	}))
	p.RequestDeletion(1, "drop")

	res, err := p.PruneUserMemories(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	got, err := core.Get(context.Background(), "drop")
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

// embeddedMemories aliases Memories so the embedded field name does not
// collide with the Memories method declared on the test doubles.
type embeddedMemories = Memories

type failingMemories struct {
	embeddedMemories
	chunks []model.MemoryChunk
}

func (f failingMemories) Memories(context.Context, int64) ([]model.MemoryChunk, error) {
	return f.chunks, nil
}

func (f failingMemories) Delete(context.Context, string) error { return errors.New("disk full") }

func TestActionErrorsAreCollected(t *testing.T) {
	p := New(failingMemories{chunks: []model.MemoryChunk{aged("old", 200*24*time.Hour, 0.5)}}, WithClock(fixedClock))
	res, err := p.PruneUserMemories(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "disk full")
	assert.Zero(t, res.Deleted)
}

type blockingMemories struct {
	embeddedMemories
	entered chan struct{}
	release chan struct{}
}

func (b blockingMemories) Memories(context.Context, int64) ([]model.MemoryChunk, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func TestPruneIsSingleFlightPerUser(t *testing.T) {
	mem := blockingMemories{entered: make(chan struct{}), release: make(chan struct{})}
	p := New(mem, WithClock(fixedClock))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = p.PruneUserMemories(ctx, 1)
	}()
	<-mem.entered

	_, err := p.PruneUserMemories(ctx, 1)
	assert.ErrorIs(t, err, ErrPruningInProgress)

	go func() { <-mem.entered }()
	done := make(chan error, 1)
	go func() {
		_, err := p.PruneUserMemories(ctx, 2)
		done <- err
	}()

	close(mem.release)
	wg.Wait()
	require.NoError(t, firstErr)
	require.NoError(t, <-done)

	go func() { <-mem.entered }()
	_, err = p.PruneUserMemories(ctx, 1)
	assert.NoError(t, err)
}

func TestPolicyManagement(t *testing.T) {
	p := New(nil)
	assert.Error(t, p.AddPolicy(model.PruningPolicy{}))
	assert.Error(t, p.AddPolicy(model.PruningPolicy{ID: "x", Rules: []model.PruningRule{{Type: model.RuleAge, Condition: model.RuleCondition{Operator: "ge"}, Action: model.ActionDelete}}}))

	require.NoError(t, p.AddPolicy(model.PruningPolicy{ID: "first", Priority: 0}))
	pols := p.Policies()
	require.Len(t, pols, 5)
	assert.Equal(t, "first", pols[0].ID)
	assert.Equal(t, "redundancy_based", pols[4].ID)

	assert.True(t, p.RemovePolicy("first"))
	assert.False(t, p.RemovePolicy("first"))

	assert.Error(t, p.UpdateDecayConfig(model.DecayConfig{DecayFunction: "cubic"}))
	cfg := model.DefaultDecayConfig()
	cfg.DecayFunction = model.DecayLinear
	require.NoError(t, p.UpdateDecayConfig(cfg))
	assert.Equal(t, model.DecayLinear, p.DecayConfig().DecayFunction)
}
