package referral

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"tapearn/entity"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore keeps the whole graph in memory. Transactions are serialized and
// work on a copy that replaces the committed state only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// failures injected into transactional writes, keyed by method name
	failMu   sync.Mutex
	failures map[string][]error
	txRuns   int
}

type memState struct {
	users      map[primitive.ObjectID]*entity.User
	edges      []*entity.ReferralEdge
	activities []*entity.Activity
}

func newMemStore() *memStore {
	return &memStore{
		state:    &memState{users: make(map[primitive.ObjectID]*entity.User)},
		failures: make(map[string][]error),
	}
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	c.Referrals = append([]primitive.ObjectID(nil), u.Referrals...)
	c.ReferralChain = append([]primitive.ObjectID(nil), u.ReferralChain...)
	if u.LastTapTime != nil {
		t := *u.LastTapTime
		c.LastTapTime = &t
	}
	if u.LastDailyClaim != nil {
		t := *u.LastDailyClaim
		c.LastDailyClaim = &t
	}
	return &c
}

func cloneEdge(e *entity.ReferralEdge) *entity.ReferralEdge {
	c := *e
	if e.LastRewardDate != nil {
		t := *e.LastRewardDate
		c.LastRewardDate = &t
	}
	return &c
}

func (s *memState) clone() *memState {
	c := &memState{users: make(map[primitive.ObjectID]*entity.User, len(s.users))}
	for id, u := range s.users {
		c.users[id] = cloneUser(u)
	}
	for _, e := range s.edges {
		c.edges = append(c.edges, cloneEdge(e))
	}
	for _, a := range s.activities {
		act := *a
		c.activities = append(c.activities, &act)
	}
	return c
}

// failNext makes the next len(errs) calls of method fail with the given errors in order.
func (m *memStore) failNext(method string, errs ...error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failures[method] = append(m.failures[method], errs...)
}

func (m *memStore) injected(method string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	queue := m.failures[method]
	if len(queue) == 0 {
		return nil
	}
	m.failures[method] = queue[1:]
	return queue[0]
}

func (m *memStore) addUser(username string, telegramId int64) primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := primitive.NewObjectID()
	m.state.users[id] = &entity.User{
		Id:           id,
		TelegramId:   telegramId,
		Username:     username,
		ComputePower: 1,
	}
	return id
}

func (m *memStore) user(id primitive.ObjectID) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (m *memStore) edgesOf(referred primitive.ObjectID) []*entity.ReferralEdge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ReferralEdge
	for _, e := range m.state.edges {
		if e.Referred == referred {
			out = append(out, cloneEdge(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

func (m *memStore) activityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.activities)
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txRuns++
	work := m.state.clone()
	if err := fn(ctx, &memTx{store: m, state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) UserById(_ context.Context, id primitive.ObjectID) (*entity.User, error) {
	return m.user(id), nil
}

func (m *memStore) UsersByIds(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[primitive.ObjectID]*entity.User)
	for _, id := range ids {
		if u, ok := m.state.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (m *memStore) ActiveEdgesOf(_ context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{state: m.state}).activeEdgesOf(referred), nil
}

func (m *memStore) DirectEdgesOf(_ context.Context, referrer primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ReferralEdge
	for _, e := range m.state.edges {
		if e.Referrer == referrer && e.Tier == 1 && e.IsActive {
			out = append(out, cloneEdge(e))
		}
	}
	return out, nil
}

func (m *memStore) TierTotals(_ context.Context, referrer primitive.ObjectID) ([]entity.TierTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTier := make(map[int]*entity.TierTotal)
	for _, e := range m.state.edges {
		if e.Referrer != referrer || !e.IsActive {
			continue
		}
		t, ok := byTier[e.Tier]
		if !ok {
			t = &entity.TierTotal{Tier: e.Tier}
			byTier[e.Tier] = t
		}
		t.Count++
		t.Earnings += e.TotalRewardsDistributed
	}
	out := make([]entity.TierTotal, 0, len(byTier))
	for _, t := range byTier {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

func (m *memStore) AllEdges(_ context.Context) ([]*entity.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.ReferralEdge, 0, len(m.state.edges))
	for _, e := range m.state.edges {
		out = append(out, cloneEdge(e))
	}
	return out, nil
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) fail(method string) error {
	if t.store == nil {
		return nil
	}
	return t.store.injected(method)
}

func (t *memTx) ReferrerOf(_ context.Context, id primitive.ObjectID) (primitive.ObjectID, bool, error) {
	u, ok := t.state.users[id]
	if !ok {
		return primitive.NilObjectID, false, nil
	}
	return u.ReferredBy, true, nil
}

func (t *memTx) UserById(_ context.Context, id primitive.ObjectID) (*entity.User, error) {
	if err := t.fail("UserById"); err != nil {
		return nil, err
	}
	u, ok := t.state.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (t *memTx) UserByReferralCode(_ context.Context, code string) (*entity.User, error) {
	for _, u := range t.state.users {
		if u.ReferralCode == code {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (t *memTx) ReferralCodeTaken(_ context.Context, code string) (bool, error) {
	for _, u := range t.state.users {
		if u.ReferralCode == code {
			return true, nil
		}
	}
	for _, e := range t.state.edges {
		if e.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SetReferralCode(_ context.Context, userId primitive.ObjectID, code string) (bool, error) {
	if err := t.fail("SetReferralCode"); err != nil {
		return false, err
	}
	u, ok := t.state.users[userId]
	if !ok || u.ReferralCode != "" {
		return false, nil
	}
	u.ReferralCode = code
	return true, nil
}

func (t *memTx) HasInboundEdge(_ context.Context, referred primitive.ObjectID) (bool, error) {
	for _, e := range t.state.edges {
		if e.Referred == referred {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertEdges(_ context.Context, edges []*entity.ReferralEdge) error {
	if err := t.fail("InsertEdges"); err != nil {
		return err
	}
	for _, n := range edges {
		for _, e := range t.state.edges {
			if e.Referred == n.Referred && (e.Tier == n.Tier || e.Referrer == n.Referrer) {
				return fmt.Errorf("%w: duplicate edge", ErrConflict)
			}
		}
		c := cloneEdge(n)
		c.Id = primitive.NewObjectID()
		t.state.edges = append(t.state.edges, c)
	}
	return nil
}

func (t *memTx) SetReferredBy(_ context.Context, userId, referrer primitive.ObjectID, chain []primitive.ObjectID) (bool, error) {
	u, ok := t.state.users[userId]
	if !ok || !u.ReferredBy.IsZero() {
		return false, nil
	}
	u.ReferredBy = referrer
	u.ReferralChain = append([]primitive.ObjectID(nil), chain...)
	return true, nil
}

func (t *memTx) AddDirectReferral(_ context.Context, referrer, referred primitive.ObjectID) error {
	u, ok := t.state.users[referrer]
	if !ok {
		return nil
	}
	for _, id := range u.Referrals {
		if id == referred {
			return nil
		}
	}
	u.Referrals = append(u.Referrals, referred)
	return nil
}

func (t *memTx) activeEdgesOf(referred primitive.ObjectID) []*entity.ReferralEdge {
	var out []*entity.ReferralEdge
	for _, e := range t.state.edges {
		if e.Referred == referred && e.IsActive {
			out = append(out, cloneEdge(e))
		}
	}
	return out
}

func (t *memTx) ActiveEdgesOf(_ context.Context, referred primitive.ObjectID) ([]*entity.ReferralEdge, error) {
	if err := t.fail("ActiveEdgesOf"); err != nil {
		return nil, err
	}
	return t.activeEdgesOf(referred), nil
}

func (t *memTx) CreditReferralReward(_ context.Context, userId primitive.ObjectID, amount int64) (bool, error) {
	if err := t.fail("CreditReferralReward"); err != nil {
		return false, err
	}
	u, ok := t.state.users[userId]
	if !ok {
		return false, nil
	}
	u.XP += amount
	u.TotalReferralXP += amount
	u.TotalReferralRewards += amount
	return true, nil
}

func (t *memTx) RecordEdgeReward(_ context.Context, edgeId primitive.ObjectID, amount int64, at time.Time) error {
	if err := t.fail("RecordEdgeReward"); err != nil {
		return err
	}
	for _, e := range t.state.edges {
		if e.Id == edgeId {
			e.TotalRewardsDistributed += amount
			ts := at
			e.LastRewardDate = &ts
			return nil
		}
	}
	return fmt.Errorf("edge %s not found", edgeId.Hex())
}

func (t *memTx) EventRecorded(_ context.Context, eventId string) (bool, error) {
	for _, a := range t.state.activities {
		if a.EventId == eventId {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertActivity(_ context.Context, activity *entity.Activity) error {
	if err := t.fail("InsertActivity"); err != nil {
		return err
	}
	for _, a := range t.state.activities {
		if a.EventId == activity.EventId && a.User == activity.User {
			return fmt.Errorf("%w: duplicate activity", ErrConflict)
		}
	}
	c := *activity
	c.Id = primitive.NewObjectID()
	t.state.activities = append(t.state.activities, &c)
	return nil
}

// instantTimer fires immediately and remembers the requested waits.
type instantTimer struct {
	mu    sync.Mutex
	c     chan time.Time
	waits []time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waits = append(t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *instantTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) (*Service, *instantTimer) {
	t.Helper()
	timer := &instantTimer{}
	svc := NewService(store, Config{
		BotUsername: "tapearn_bot",
		MaxTier:     entity.MaxReferralTier,
		ScanDepth:   32,
		Retry: RetryPolicy{
			MaxAttempts: DefaultRetryAttempts,
			Backoff:     DefaultRetryBackoff,
			Timer:       timer,
		},
	}, discardLogger())
	svc.SetClock(func() time.Time { return testNow })
	return svc, timer
}

// refer applies the code of referrer for user and fails the test on error.
func refer(t *testing.T, svc *Service, user, referrer primitive.ObjectID) {
	t.Helper()
	ctx := context.Background()
	link, err := svc.GenerateReferralCode(ctx, referrer)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if _, err = svc.ApplyReferralCode(ctx, user, link.Code); err != nil {
		t.Fatalf("apply code: %v", err)
	}
}
