package order

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/store"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/types"
)

type statusUpdate struct {
	serverID string
	status   types.Status
}

type fakeClient struct {
	remote    []types.Order
	getErr    error
	getCalls  int
	createErr error
	syncFn    func(orders []types.Order) ([]types.Order, error)
	byNumber  map[string]types.Order
	updateErr error
	updates   []statusUpdate
	deleteErr error
	deleted   []string
}

func (f *fakeClient) GetOrders(_ context.Context, _ types.Status) ([]types.Order, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.remote, nil
}

func (f *fakeClient) GetOrderByNumber(_ context.Context, number string) (*types.Order, error) {
	o, ok := f.byNumber[number]
	if !ok {
		return nil, errors.New("Order not exists")
	}
	return &o, nil
}

func (f *fakeClient) CreateOrder(_ context.Context, o types.Order) (*types.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	o.ServerID = "s-created"
	return &o, nil
}

func (f *fakeClient) SyncOrders(_ context.Context, orders []types.Order) ([]types.Order, error) {
	if f.syncFn == nil {
		return nil, errors.New("no sync configured")
	}
	return f.syncFn(orders)
}

func (f *fakeClient) UpdateOrderStatus(_ context.Context, serverID string, status types.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, statusUpdate{serverID, status})
	return nil
}

func (f *fakeClient) DeleteOrder(_ context.Context, serverID string) error {
	f.deleted = append(f.deleted, serverID)
	return f.deleteErr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func always(v bool) func() bool {
	return func() bool { return v }
}

func remoteOrder(number, serverID string, age time.Duration) types.Order {
	return types.Order{
		ServerID:    serverID,
		OrderNumber: number,
		Status:      types.PendingStatus,
		Items:       []types.OrderItem{{Name: "Biryani", Price: 8, Quantity: 1}},
		Total:       8,
		Timestamp:   time.Now().UTC().Add(-age).Truncate(time.Second),
	}
}

func TestPullReplacesCacheSortedDesc(t *testing.T) {

	st := newTestStore(t)
	client := &fakeClient{remote: []types.Order{
		remoteOrder("ORD-OLD", "s1", 2*time.Hour),
		remoteOrder("ORD-NEW", "s2", 0),
	}}
	s := NewSyncer(st, client, always(true))

	stale := remoteOrder("ORD-STALE", "s9", time.Hour)
	require.NoError(t, st.Put(context.Background(), &stale))

	got, err := s.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ORD-NEW", got[0].OrderNumber)
	assert.Equal(t, "ORD-OLD", got[1].OrderNumber)
	assert.True(t, got[0].Synced)

	cached, err := st.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestPullTwiceKeepsLocalKeys(t *testing.T) {

	st := newTestStore(t)
	client := &fakeClient{remote: []types.Order{
		remoteOrder("ORD-001", "s1", time.Hour),
		remoteOrder("ORD-002", "s2", 0),
	}}
	s := NewSyncer(st, client, always(true))

	first, err := s.Pull(context.Background())
	require.NoError(t, err)

	second, err := s.Pull(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPullFallsBackToCache(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	older := remoteOrder("ORD-001", "s1", time.Hour)
	newer := remoteOrder("ORD-002", "s2", 0)
	require.NoError(t, st.Put(ctx, &older))
	require.NoError(t, st.Put(ctx, &newer))

	client := &fakeClient{getErr: errors.New("connection refused")}
	s := NewSyncer(st, client, always(true))

	got, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ORD-002", got[0].OrderNumber)

	// cache untouched
	cached, err := st.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestPullOfflineServesCacheWithoutNetwork(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "s1", 0)
	require.NoError(t, st.Put(ctx, &o))

	client := &fakeClient{remote: []types.Order{remoteOrder("ORD-002", "s2", 0)}}
	s := NewSyncer(st, client, always(false))

	got, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-001", got[0].OrderNumber)
	assert.Zero(t, client.getCalls)
}

func TestPullDuplicateRemoteNumbersKeepOneKey(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	local := remoteOrder("ORD-001", "", 0)
	require.NoError(t, st.Put(ctx, &local))

	client := &fakeClient{remote: []types.Order{
		remoteOrder("ORD-001", "s1", time.Hour),
		remoteOrder("ORD-001", "s2", 0),
	}}
	s := NewSyncer(st, client, always(true))

	got, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	kept := 0
	for _, o := range got {
		if o.LocalID == local.LocalID {
			kept++
		}
	}
	assert.Equal(t, 1, kept)
}

func TestPullKeepsDirtyMutation(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	local := remoteOrder("ORD-001", "s1", time.Hour)
	local.Status = types.ReadyStatus
	local.Dirty = true
	require.NoError(t, st.Put(ctx, &local))

	client := &fakeClient{remote: []types.Order{remoteOrder("ORD-001", "s1", time.Hour)}}
	s := NewSyncer(st, client, always(true))

	got, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ReadyStatus, got[0].Status)
	assert.True(t, got[0].Dirty)
	assert.Equal(t, local.LocalID, got[0].LocalID)
}

// The reconciliation scenario: two unsynced orders, the server acknowledges
// both with fresh server ids. Both must end up synced under their original
// local keys.
func TestPushReconciliation(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	a := remoteOrder("ORD-A", "", 0)
	b := remoteOrder("ORD-B", "s1", 0)
	require.NoError(t, st.Put(ctx, &a))
	require.NoError(t, st.Put(ctx, &b))

	client := &fakeClient{
		syncFn: func(orders []types.Order) ([]types.Order, error) {
			require.Len(t, orders, 2)
			var acked []types.Order
			for _, o := range orders {
				if o.OrderNumber == "ORD-A" {
					o.ServerID = "s1"
				} else {
					o.ServerID = "s2"
				}
				acked = append(acked, o)
			}
			return acked, nil
		},
	}
	s := NewSyncer(st, client, always(true))

	result := s.Push(ctx)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Synced)

	gotA, err := st.Get(ctx, a.LocalID)
	require.NoError(t, err)
	assert.True(t, gotA.Synced)
	assert.Equal(t, "ORD-A", gotA.OrderNumber)
	assert.Equal(t, "s1", gotA.ServerID)

	gotB, err := st.Get(ctx, b.LocalID)
	require.NoError(t, err)
	assert.True(t, gotB.Synced)
	assert.Equal(t, "ORD-B", gotB.OrderNumber)
	assert.Equal(t, "s2", gotB.ServerID)
}

func TestPushNothingPending(t *testing.T) {

	st := newTestStore(t)
	s := NewSyncer(st, &fakeClient{}, always(true))

	result := s.Push(context.Background())
	assert.True(t, result.Success)
	assert.Zero(t, result.Synced)
}

func TestPushFailureQuarantinesAfterCap(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "", 0)
	require.NoError(t, st.Put(ctx, &o))

	client := &fakeClient{
		syncFn: func([]types.Order) ([]types.Order, error) {
			return nil, errors.New("Network Error")
		},
	}
	s := NewSyncer(st, client, always(true))

	for i := 0; i < maxPushAttempts; i++ {
		result := s.Push(ctx)
		assert.False(t, result.Success)
	}

	pending, err := st.GetUnsynced(ctx, maxPushAttempts)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a fresh mutation resets the counter and lifts the quarantine
	require.NoError(t, s.UpdateStatus(ctx, Ref{LocalID: o.LocalID}, types.PreparingStatus))
	pending, err = st.GetUnsynced(ctx, maxPushAttempts)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPushDirtySkipsUnresolvable(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	resolvable := remoteOrder("ORD-001", "", 0)
	resolvable.Synced = true
	resolvable.Dirty = true
	resolvable.Status = types.ReadyStatus
	require.NoError(t, st.Put(ctx, &resolvable))

	orphan := remoteOrder("ORD-404", "", 0)
	orphan.Synced = true
	orphan.Dirty = true
	require.NoError(t, st.Put(ctx, &orphan))

	client := &fakeClient{
		byNumber: map[string]types.Order{
			"ORD-001": {ServerID: "s1", OrderNumber: "ORD-001"},
		},
	}
	s := NewSyncer(st, client, always(true))

	result := s.Push(ctx)
	assert.True(t, result.Success)

	require.Len(t, client.updates, 1)
	assert.Equal(t, statusUpdate{"s1", types.ReadyStatus}, client.updates[0])

	got, err := st.Get(ctx, resolvable.LocalID)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Equal(t, "s1", got.ServerID)

	still, err := st.Get(ctx, orphan.LocalID)
	require.NoError(t, err)
	assert.True(t, still.Dirty)
}

func TestQueueOrderOnlineGoesDirect(t *testing.T) {

	st := newTestStore(t)
	s := NewSyncer(st, &fakeClient{}, always(true))

	created, err := s.QueueOrder(context.Background(), remoteOrder("ORD-001", "", 0))
	require.NoError(t, err)
	assert.Equal(t, "s-created", created.ServerID)
	assert.True(t, created.Synced)
	require.NotZero(t, created.LocalID)

	pending, err := st.GetUnsynced(context.Background(), maxPushAttempts)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueueOrderOfflineQueues(t *testing.T) {

	st := newTestStore(t)
	client := &fakeClient{}
	s := NewSyncer(st, client, always(false))

	queued, err := s.QueueOrder(context.Background(), remoteOrder("ORD-001", "", 0))
	require.NoError(t, err)
	assert.False(t, queued.Synced)

	pending, err := st.GetUnsynced(context.Background(), maxPushAttempts)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD-001", pending[0].OrderNumber)
}

func TestQueueOrderFallsBackWhenCreateFails(t *testing.T) {

	st := newTestStore(t)
	client := &fakeClient{createErr: errors.New("Network Error")}
	s := NewSyncer(st, client, always(true))

	queued, err := s.QueueOrder(context.Background(), remoteOrder("ORD-001", "", 0))
	require.NoError(t, err)
	assert.False(t, queued.Synced)

	pending, err := st.GetUnsynced(context.Background(), maxPushAttempts)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestUpdateStatusOfflineMarksDirty(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "s1", 0)
	o.Synced = true
	require.NoError(t, st.Put(ctx, &o))

	client := &fakeClient{}
	s := NewSyncer(st, client, always(false))

	require.NoError(t, s.UpdateStatus(ctx, Ref{LocalID: o.LocalID}, types.CompletedStatus))

	got, err := st.Get(ctx, o.LocalID)
	require.NoError(t, err)
	assert.Equal(t, types.CompletedStatus, got.Status)
	assert.True(t, got.Dirty)
	assert.Empty(t, client.updates)
}

func TestUpdateStatusOnlinePushesAndReconciles(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "s1", 0)
	o.Synced = true
	require.NoError(t, st.Put(ctx, &o))

	updated := remoteOrder("ORD-001", "s1", 0)
	updated.Status = types.ReadyStatus
	client := &fakeClient{remote: []types.Order{updated}}
	s := NewSyncer(st, client, always(true))

	require.NoError(t, s.UpdateStatus(ctx, Ref{LocalID: o.LocalID}, types.ReadyStatus))

	require.Len(t, client.updates, 1)
	assert.Equal(t, statusUpdate{"s1", types.ReadyStatus}, client.updates[0])
	assert.Equal(t, 1, client.getCalls)

	got, err := st.Get(ctx, o.LocalID)
	require.NoError(t, err)
	assert.Equal(t, types.ReadyStatus, got.Status)
	assert.False(t, got.Dirty)
}

func TestDeleteRefusedOffline(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "s1", 0)
	require.NoError(t, st.Put(ctx, &o))

	s := NewSyncer(st, &fakeClient{}, always(false))

	err := s.Delete(ctx, Ref{LocalID: o.LocalID})
	assert.ErrorIs(t, err, ErrDeleteOffline)

	_, err = st.Get(ctx, o.LocalID)
	assert.NoError(t, err)
}

func TestDeleteSurvivesRemoteFailure(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	o := remoteOrder("ORD-001", "s1", 0)
	require.NoError(t, st.Put(ctx, &o))

	client := &fakeClient{deleteErr: errors.New("boom")}
	s := NewSyncer(st, client, always(true))

	require.NoError(t, s.Delete(ctx, Ref{LocalID: o.LocalID}))

	_, err := st.Get(ctx, o.LocalID)
	var notFound *store.OrderNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"s1"}, client.deleted)
}

func TestResolvePrecedence(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	first := remoteOrder("ORD-001", "s-other", 0)
	require.NoError(t, st.Put(ctx, &first))

	// a different order whose server id equals the first order's local key
	// as a string would be ambiguous; the local key must win
	second := remoteOrder("ORD-002", "s1", 0)
	require.NoError(t, st.Put(ctx, &second))

	s := NewSyncer(st, &fakeClient{}, always(true))

	byKey, err := s.Resolve(ctx, Ref{LocalID: first.LocalID, ServerID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-001", byKey.OrderNumber)

	byServer, err := s.Resolve(ctx, Ref{ServerID: "s1", OrderNumber: "ORD-001"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-002", byServer.OrderNumber)

	byNumber, err := s.Resolve(ctx, Ref{OrderNumber: "ORD-001"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-001", byNumber.OrderNumber)

	_, err = s.Resolve(ctx, Ref{OrderNumber: "ORD-NOPE"})
	var notFound *store.OrderNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSingleFlightGuards(t *testing.T) {

	st := newTestStore(t)
	s := NewSyncer(st, &fakeClient{}, always(true))

	s.pullMu.Lock()
	_, err := s.Pull(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	s.pullMu.Unlock()

	s.pushMu.Lock()
	result := s.Push(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, ErrSyncInProgress.Error(), result.Error)
	s.pushMu.Unlock()
}

func TestLocalStats(t *testing.T) {

	st := newTestStore(t)
	ctx := context.Background()

	today := remoteOrder("ORD-001", "s1", 0)
	today.Total = 12.5
	require.NoError(t, st.Put(ctx, &today))

	yesterday := remoteOrder("ORD-002", "s2", 30*time.Hour)
	yesterday.Status = types.CompletedStatus
	require.NoError(t, st.Put(ctx, &yesterday))

	s := NewSyncer(st, &fakeClient{}, always(false))

	stats, err := s.LocalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.TodayOrders)
	assert.InDelta(t, 12.5, stats.TodayRevenue, 0.001)
	assert.Equal(t, 1, stats.PendingOrders)
}
