package referral

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"tapearn/entity"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func edge(referrer, referred primitive.ObjectID, tier int) *entity.ReferralEdge {
	return &entity.ReferralEdge{
		Id:       primitive.NewObjectID(),
		Referrer: referrer,
		Referred: referred,
		Tier:     tier,
		IsActive: true,
	}
}

func TestInspectClean(t *testing.T) {
	u := ids(4)
	snap := Snapshot{Edges: []*entity.ReferralEdge{
		edge(u[0], u[1], 1),
		edge(u[1], u[2], 1),
		edge(u[0], u[2], 2),
		edge(u[2], u[3], 1),
		edge(u[1], u[3], 2),
		edge(u[0], u[3], 3),
	}}
	report := Inspect(snap)
	assert.True(t, report.Clean())
	assert.Equal(t, 6, report.Edges)
}

func TestInspectFindings(t *testing.T) {
	u := ids(4)
	rewarded := edge(u[0], u[1], 1)
	rewarded.TotalRewardsDistributed = 40

	paid := edge(u[0], u[2], 1)
	paid.TotalRewardsDistributed = 10
	ts := time.Now()
	paid.LastRewardDate = &ts

	snap := Snapshot{Edges: []*entity.ReferralEdge{
		rewarded,
		paid,
		edge(primitive.NilObjectID, u[3], 1),
		edge(u[3], u[3], 1),
	}}
	report := Inspect(snap)

	assert.Equal(t, 1, report.Count(FindingOrphaned))
	assert.Equal(t, 1, report.Count(FindingInconsistent))
	assert.GreaterOrEqual(t, report.Count(FindingCircular), 1)
	assert.Contains(t, report.Summary(), "orphaned: 1")
}

func TestInspectCycle(t *testing.T) {
	u := ids(3)
	snap := Snapshot{Edges: []*entity.ReferralEdge{
		edge(u[0], u[1], 1),
		edge(u[1], u[2], 1),
		edge(u[2], u[0], 1),
	}}
	report := Inspect(snap)
	assert.Equal(t, 3, report.Count(FindingCircular))
}

func TestInspectCycleSkipsDownstream(t *testing.T) {
	u := ids(3)
	downstream := edge(u[0], u[2], 1)
	snap := Snapshot{Edges: []*entity.ReferralEdge{
		edge(u[0], u[1], 1),
		edge(u[1], u[0], 1),
		downstream,
	}}
	report := Inspect(snap)
	assert.Equal(t, 2, report.Count(FindingCircular))
	for _, f := range report.Findings {
		assert.NotEqual(t, downstream.Id, f.EdgeId)
	}
}

func TestInspectCycleThroughInactiveEdge(t *testing.T) {
	u := ids(2)
	back := edge(u[1], u[0], 1)
	back.IsActive = false
	snap := Snapshot{Edges: []*entity.ReferralEdge{edge(u[0], u[1], 1), back}}
	assert.Equal(t, 2, Inspect(snap).Count(FindingCircular))
}

func TestInspectMissingUsers(t *testing.T) {
	u := ids(2)
	snap := Snapshot{
		Edges: []*entity.ReferralEdge{edge(u[0], u[1], 1)},
		Users: map[primitive.ObjectID]bool{u[1]: true},
	}
	report := Inspect(snap)
	require.Equal(t, 1, report.Count(FindingOrphaned))
	assert.Contains(t, report.Findings[0].Detail, "referrer")
}

func TestInspectTierBound(t *testing.T) {
	u := ids(5)
	snap := Snapshot{Edges: []*entity.ReferralEdge{
		edge(u[0], u[4], 1),
		edge(u[1], u[4], 1),
		edge(u[2], u[4], 2),
		edge(u[3], u[4], 3),
	}}
	report := Inspect(snap)
	// four edges for one user and tier 1 twice
	assert.Equal(t, 2, report.Count(FindingTierBound))
}

func TestInspectIgnoresInactive(t *testing.T) {
	u := ids(2)
	old := edge(u[0], u[1], 1)
	old.IsActive = false
	snap := Snapshot{Edges: []*entity.ReferralEdge{old, edge(u[0], u[1], 1)}}
	assert.Zero(t, Inspect(snap).Count(FindingTierBound))
}

func TestCheckIntegrity(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	c := store.addUser("c", 3)
	refer(t, svc, b, a)
	refer(t, svc, c, b)
	_, err := svc.DistributeReward(ctx, XPEvent{UserId: c, Amount: 1000})
	require.NoError(t, err)

	report, err := svc.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), report.Summary())
	assert.Equal(t, 3, report.Edges)

	store.mu.Lock()
	delete(store.state.users, a)
	store.mu.Unlock()

	report, err = svc.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(FindingOrphaned))
}

func TestCheckIntegrityLogsOneError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	var buf bytes.Buffer
	svc := NewService(store, Config{MaxTier: entity.MaxReferralTier, ScanDepth: 32},
		slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	c := store.addUser("c", 3)
	refer(t, svc, b, a)
	refer(t, svc, c, b)

	store.mu.Lock()
	delete(store.state.users, a)
	store.mu.Unlock()
	buf.Reset()

	report, err := svc.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Count(FindingOrphaned))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	errorLines := 0
	for _, line := range lines {
		if strings.Contains(line, "level=ERROR") {
			errorLines++
		}
		assert.Equal(t, 1, strings.Count(line, "module="), line)
	}
	assert.Equal(t, 1, errorLines)
	assert.Equal(t, 2, strings.Count(buf.String(), "level=WARN"))
}
