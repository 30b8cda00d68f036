package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDistributeSingleTier(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	dist, err := svc.DistributeReward(ctx, XPEvent{EventId: "tap-1", UserId: b, Amount: 200, Source: "tap"})
	require.NoError(t, err)
	assert.False(t, dist.Duplicate)
	assert.Equal(t, 1, dist.Attempts)
	require.Len(t, dist.Credits, 1)
	assert.Equal(t, Credit{Ancestor: a, Tier: 1, Amount: 20}, dist.Credits[0])

	ua := store.user(a)
	assert.Equal(t, int64(20), ua.XP)
	assert.Equal(t, int64(20), ua.TotalReferralXP)
	assert.Equal(t, int64(20), ua.TotalReferralRewards)

	edges := store.edgesOf(b)
	require.Len(t, edges, 1)
	assert.Equal(t, int64(20), edges[0].TotalRewardsDistributed)
	require.NotNil(t, edges[0].LastRewardDate)
	assert.Equal(t, testNow, *edges[0].LastRewardDate)
	assert.Equal(t, 1, store.activityCount())
}

func TestDistributeThreeTiers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	c := store.addUser("c", 3)
	d := store.addUser("d", 4)
	refer(t, svc, b, a)
	refer(t, svc, c, b)
	refer(t, svc, d, c)

	dist, err := svc.DistributeReward(ctx, XPEvent{EventId: "tap-d", UserId: d, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(175), dist.Total())

	assert.Equal(t, int64(100), store.user(c).XP)
	assert.Equal(t, int64(50), store.user(b).XP)
	assert.Equal(t, int64(25), store.user(a).XP)
	assert.Zero(t, store.user(d).XP)

	for _, edge := range store.edgesOf(d) {
		assert.Equal(t, TierReward(edge.Tier, 1000), edge.TotalRewardsDistributed)
	}
}

func TestDistributeAccumulates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	var total int64
	for i, xp := range []int64{10, 200, 35, 1000} {
		dist, err := svc.DistributeReward(ctx, XPEvent{EventId: fmt.Sprintf("ev-%d", i), UserId: b, Amount: xp})
		require.NoError(t, err)
		total += dist.Total()
	}
	assert.Equal(t, int64(1+20+3+100), total)
	assert.Equal(t, total, store.edgesOf(b)[0].TotalRewardsDistributed)
	assert.Equal(t, total, store.user(a).TotalReferralXP)
}

func TestDistributeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	ev := XPEvent{EventId: "claim-42", UserId: b, Amount: 100}
	_, err := svc.DistributeReward(ctx, ev)
	require.NoError(t, err)

	again, err := svc.DistributeReward(ctx, ev)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Empty(t, again.Credits)
	assert.Equal(t, int64(10), store.user(a).XP)
	assert.Equal(t, 1, store.activityCount())
}

func TestDistributeWithoutReferrer(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	loner := store.addUser("loner", 1)

	dist, err := svc.DistributeReward(context.Background(), XPEvent{UserId: loner, Amount: 500})
	require.NoError(t, err)
	assert.NotEmpty(t, dist.EventId)
	assert.Empty(t, dist.Credits)
	assert.Zero(t, store.activityCount())
}

func TestDistributeSkipsSmallAndMissing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	c := store.addUser("c", 3)
	refer(t, svc, b, a)
	refer(t, svc, c, b)

	// 15 XP pays 1 at tier 1 and nothing at tier 2
	dist, err := svc.DistributeReward(ctx, XPEvent{UserId: c, Amount: 15})
	require.NoError(t, err)
	require.Len(t, dist.Credits, 1)
	assert.Equal(t, b, dist.Credits[0].Ancestor)
	assert.Equal(t, 1, dist.Skipped)

	// the tier 2 ancestor disappears; tier 1 is still paid
	store.mu.Lock()
	delete(store.state.users, a)
	store.mu.Unlock()

	dist, err = svc.DistributeReward(ctx, XPEvent{UserId: c, Amount: 1000})
	require.NoError(t, err)
	require.Len(t, dist.Credits, 1)
	assert.Equal(t, int64(100), dist.Credits[0].Amount)
	assert.Equal(t, 1, dist.Skipped)
	assert.Equal(t, int64(101), store.user(b).XP)
}

func TestDistributeNonPositive(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	for _, xp := range []int64{0, -10} {
		dist, err := svc.DistributeReward(context.Background(), XPEvent{UserId: b, Amount: xp})
		require.NoError(t, err)
		assert.Empty(t, dist.Credits)
	}
	assert.Zero(t, store.user(a).XP)
}

func TestDistributeAtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	// the ancestor is credited, then the edge update fails
	store.failNext("RecordEdgeReward", assert.AnError)

	_, err := svc.DistributeReward(ctx, XPEvent{EventId: "ev", UserId: b, Amount: 1000})
	require.ErrorIs(t, err, ErrFatalDistribution)
	require.ErrorIs(t, err, assert.AnError)

	assert.Zero(t, store.user(a).XP)
	assert.Zero(t, store.user(a).TotalReferralXP)
	assert.Zero(t, store.edgesOf(b)[0].TotalRewardsDistributed)
	assert.Zero(t, store.activityCount())

	// the same event can be delivered again once storage recovers
	dist, err := svc.DistributeReward(ctx, XPEvent{EventId: "ev", UserId: b, Amount: 1000})
	require.NoError(t, err)
	assert.False(t, dist.Duplicate)
	assert.Equal(t, int64(100), store.user(a).XP)
}

func TestDistributeRetriesTransient(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, timer := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	store.failNext("CreditReferralReward", ErrTransient, ErrTransient)

	dist, err := svc.DistributeReward(ctx, XPEvent{UserId: b, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3, dist.Attempts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, timer.Waits())
	assert.Equal(t, int64(100), store.user(a).XP)
}

func TestDistributeRetryExhausted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, timer := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	store.failNext("ActiveEdgesOf", ErrTransient, ErrTransient, ErrTransient, ErrTransient)

	_, err := svc.DistributeReward(ctx, XPEvent{UserId: b, Amount: 1000})
	require.ErrorIs(t, err, ErrFatalDistribution)
	require.ErrorIs(t, err, ErrTransient)
	assert.Len(t, timer.Waits(), DefaultRetryAttempts-1)
	assert.Zero(t, store.user(a).XP)

	// one injected failure was not consumed: exactly three attempts were made
	assert.Error(t, store.injected("ActiveEdgesOf"))
	assert.NoError(t, store.injected("ActiveEdgesOf"))
}

func TestDistributeConcurrentDuplicateInsert(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(t, store)
	a := store.addUser("a", 1)
	b := store.addUser("b", 2)
	refer(t, svc, b, a)

	// a concurrent delivery recorded the activity between the check and the insert
	store.failNext("InsertActivity", fmt.Errorf("%w: duplicate key", ErrConflict))

	dist, err := svc.DistributeReward(ctx, XPEvent{EventId: "ev-dup", UserId: b, Amount: 1000})
	require.NoError(t, err)
	assert.True(t, dist.Duplicate)
	assert.Zero(t, store.user(a).XP)
}

func TestDistributeUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, newMemStore())
	dist, err := svc.DistributeReward(context.Background(), XPEvent{UserId: primitive.NewObjectID(), Amount: 10})
	require.NoError(t, err)
	assert.Empty(t, dist.Credits)
}
