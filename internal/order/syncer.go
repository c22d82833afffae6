package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/store"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/types"
)

// maxPushAttempts quarantines a record after this many failed pushes. The
// counter resets when the admin mutates the record again.
const maxPushAttempts = 5

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrDeleteOffline  = errors.New("delete requires connectivity")
)

// Store is the slice of the local cache the syncer works with.
type Store interface {
	GetAll(ctx context.Context) ([]types.Order, error)
	Get(ctx context.Context, localID int64) (*types.Order, error)
	GetByServerID(ctx context.Context, serverID string) (*types.Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*types.Order, error)
	GetUnsynced(ctx context.Context, retryLimit int) ([]types.Order, error)
	GetDirty(ctx context.Context) ([]types.Order, error)
	Put(ctx context.Context, o *types.Order) error
	Delete(ctx context.Context, localID int64) error
	ReplaceAll(ctx context.Context, orders []types.Order) error
	IncrementRetry(ctx context.Context, localID int64) error
}

// Client is the slice of the backend API the syncer talks to.
type Client interface {
	GetOrders(ctx context.Context, status types.Status) ([]types.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*types.Order, error)
	CreateOrder(ctx context.Context, o types.Order) (*types.Order, error)
	SyncOrders(ctx context.Context, orders []types.Order) ([]types.Order, error)
	UpdateOrderStatus(ctx context.Context, serverID string, status types.Status) error
	DeleteOrder(ctx context.Context, serverID string) error
}

// Ref carries the three identifiers an order may be addressed by. Resolution
// precedence is fixed: local key, then server id, then order number.
type Ref struct {
	LocalID     int64
	ServerID    string
	OrderNumber string
}

// PushResult is what a push cycle reports back to callers: best effort, no
// unhandled faults.
type PushResult struct {
	Success bool   `json:"success"`
	Synced  int    `json:"synced"`
	Error   string `json:"error,omitempty"`
}

// Syncer reconciles the local order cache against the backend. Pull and push
// are each guarded by a single-flight lock so overlapping timer-triggered and
// user-triggered cycles serialize instead of interleaving store writes.
type Syncer struct {
	store  Store
	client Client
	online func() bool

	pullMu sync.Mutex
	pushMu sync.Mutex
}

func NewSyncer(st Store, client Client, online func() bool) *Syncer {
	return &Syncer{store: st, client: client, online: online}
}

// Pull fetches the full order list from the backend and atomically replaces
// the local cache with it, reusing existing local keys for orders already
// cached. Offline the cache is served directly without touching the network;
// on any fetch failure the current cache is returned untouched. The result
// is always sorted by timestamp descending.
func (s *Syncer) Pull(ctx context.Context) ([]types.Order, error) {

	if !s.online() {
		return s.cached(ctx)
	}

	if !s.pullMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.pullMu.Unlock()

	fetched, err := s.client.GetOrders(ctx, "")
	if err != nil {
		logger.Warningf("Pull failed, serving cached orders: %s", err.Error())
		return s.cached(ctx)
	}

	current, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	// each local key may be claimed by at most one fetched order
	claimed := make(map[int64]bool)
	for i := range fetched {
		fetched[i].Synced = true
		local := matchLocal(current, fetched[i])
		if local == nil || claimed[local.LocalID] {
			continue
		}
		claimed[local.LocalID] = true
		fetched[i].LocalID = local.LocalID
		// an unpushed mutation survives the pull
		if local.Dirty {
			fetched[i].Status = local.Status
			fetched[i].Dirty = true
			fetched[i].RetryCount = local.RetryCount
		}
	}

	if err := s.store.ReplaceAll(ctx, fetched); err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	sortNewestFirst(fetched)
	return fetched, nil
}

func (s *Syncer) cached(ctx context.Context) ([]types.Order, error) {
	orders, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	sortNewestFirst(orders)
	return orders, nil
}

// Cached returns the local cache without touching the network.
func (s *Syncer) Cached(ctx context.Context) ([]types.Order, error) {
	return s.cached(ctx)
}

// Push submits every queued unsynced order as one batch, then pushes status
// updates for dirty records one by one. A failure on a single dirty record
// is logged and skipped, never aborting the rest.
func (s *Syncer) Push(ctx context.Context) PushResult {

	if !s.pushMu.TryLock() {
		return PushResult{Success: false, Error: ErrSyncInProgress.Error()}
	}
	defer s.pushMu.Unlock()

	result := PushResult{Success: true}

	pending, err := s.store.GetUnsynced(ctx, maxPushAttempts)
	if err != nil {
		return PushResult{Success: false, Error: err.Error()}
	}

	if len(pending) > 0 {
		acked, err := s.client.SyncOrders(ctx, pending)
		if err != nil {
			logger.Warningf("Bulk sync of %d orders failed: %s", len(pending), err.Error())
			for _, o := range pending {
				if err := s.store.IncrementRetry(ctx, o.LocalID); err != nil {
					logger.Error(err.Error())
				}
				if o.RetryCount+1 >= maxPushAttempts {
					logger.Warningf("Order %s quarantined after %d failed pushes", o.OrderNumber, o.RetryCount+1)
				}
			}
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Synced = s.storeAcked(ctx, pending, acked)
		}
	}

	s.pushDirty(ctx)
	return result
}

// storeAcked writes the server's canonical representation of every
// acknowledged order back under its stable local key.
func (s *Syncer) storeAcked(ctx context.Context, pending, acked []types.Order) int {

	synced := 0
	for i, canonical := range acked {
		local := matchAcked(pending, canonical)
		if local == nil && i < len(pending) {
			local = &pending[i]
		}
		if local == nil {
			logger.Warningf("Server acknowledged unknown order %s, skipping", canonical.OrderNumber)
			continue
		}

		canonical.LocalID = local.LocalID
		canonical.Synced = true
		if local.Dirty {
			// the unpushed status change wins until its own push succeeds
			canonical.Status = local.Status
			canonical.Dirty = true
		}
		canonical.RetryCount = 0

		if err := s.store.Put(ctx, &canonical); err != nil {
			logger.Errorf("Failed to store synced order %s: %s", canonical.OrderNumber, err.Error())
			continue
		}
		synced++
	}
	return synced
}

// pushDirty pushes queued status changes. Records that cannot be resolved to
// a server id are skipped and retried on a later cycle.
func (s *Syncer) pushDirty(ctx context.Context) {

	dirty, err := s.store.GetDirty(ctx)
	if err != nil {
		logger.Error(err.Error())
		return
	}

	for _, record := range dirty {
		serverID := record.ServerID
		if serverID == "" {
			remote, err := s.client.GetOrderByNumber(ctx, record.OrderNumber)
			if err != nil {
				logger.Warningf("Could not resolve server id for order %s: %s", record.OrderNumber, err.Error())
				continue
			}
			serverID = remote.ServerID
		}

		if err := s.client.UpdateOrderStatus(ctx, serverID, record.Status); err != nil {
			logger.Warningf("Status push for order %s failed: %s", record.OrderNumber, err.Error())
			if err := s.store.IncrementRetry(ctx, record.LocalID); err != nil {
				logger.Error(err.Error())
			}
			continue
		}

		record.ServerID = serverID
		record.Dirty = false
		record.Synced = true
		record.RetryCount = 0
		if err := s.store.Put(ctx, &record); err != nil {
			logger.Error(err.Error())
		}
	}
}

// QueueOrder takes a newly originated order in. Online it goes straight to
// the server and the canonical copy is cached synced; offline (or when the
// server refuses) the order is queued unsynced for the next push cycle.
func (s *Syncer) QueueOrder(ctx context.Context, o types.Order) (*types.Order, error) {

	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	o.LocalID = 0
	o.Dirty = false
	o.RetryCount = 0

	if s.online() {
		created, err := s.client.CreateOrder(ctx, o)
		if err == nil {
			created.Synced = true
			if err := s.store.Put(ctx, created); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
			return created, nil
		}
		logger.Warningf("Direct create of order %s failed, queueing locally: %s", o.OrderNumber, err.Error())
	}

	o.Synced = false
	if err := s.store.Put(ctx, &o); err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	return &o, nil
}

// UpdateStatus applies a status change. Online it goes straight to the
// server and reconciles with a fresh pull; offline (or when the server
// refuses) the change lands in the cache flagged dirty for a later push.
func (s *Syncer) UpdateStatus(ctx context.Context, ref Ref, status types.Status) error {

	record, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	if s.online() {
		serverID := record.ServerID
		if serverID == "" {
			if remote, err := s.client.GetOrderByNumber(ctx, record.OrderNumber); err == nil {
				serverID = remote.ServerID
			}
		}
		if serverID != "" {
			if err := s.client.UpdateOrderStatus(ctx, serverID, status); err == nil {
				if _, err := s.Pull(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
					logger.Warning(err.Error())
				}
				return nil
			}
			logger.Warningf("Direct status update for order %s failed, queueing locally", record.OrderNumber)
		}
	}

	record.Status = status
	record.Dirty = true
	record.RetryCount = 0
	if err := s.store.Put(ctx, record); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Delete removes an order. Deletes are refused offline rather than queued:
// a queued delete could silently cancel an order another terminal already
// started preparing. Locally the record goes first; a remote failure is
// logged and the local deletion stands.
func (s *Syncer) Delete(ctx context.Context, ref Ref) error {

	if !s.online() {
		return fmt.Errorf("%w", ErrDeleteOffline)
	}

	record, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, record.LocalID); err != nil {
		return fmt.Errorf("%w", err)
	}

	serverID := record.ServerID
	if serverID == "" {
		if remote, err := s.client.GetOrderByNumber(ctx, record.OrderNumber); err == nil {
			serverID = remote.ServerID
		}
	}
	if serverID == "" {
		logger.Warningf("No server id for deleted order %s, remote copy may remain", record.OrderNumber)
		return nil
	}
	if err := s.client.DeleteOrder(ctx, serverID); err != nil {
		logger.Warningf("Remote delete of order %s failed: %s", record.OrderNumber, err.Error())
	}
	return nil
}

// Resolve maps any of the three identifiers to the cached record, trying the
// local key first, then the server id, then the order number.
func (s *Syncer) Resolve(ctx context.Context, ref Ref) (*types.Order, error) {

	var notFound *store.OrderNotFoundError

	if ref.LocalID != 0 {
		record, err := s.store.Get(ctx, ref.LocalID)
		if err == nil {
			return record, nil
		}
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if ref.ServerID != "" {
		record, err := s.store.GetByServerID(ctx, ref.ServerID)
		if err == nil {
			return record, nil
		}
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if ref.OrderNumber != "" {
		record, err := s.store.GetByOrderNumber(ctx, ref.OrderNumber)
		if err == nil {
			return record, nil
		}
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w", &store.OrderNotFoundError{
		LocalID:     ref.LocalID,
		ServerID:    ref.ServerID,
		OrderNumber: ref.OrderNumber,
	})
}

// LocalStats aggregates the cache for the dashboard when the backend's
// /stats endpoint is unreachable.
func (s *Syncer) LocalStats(ctx context.Context) (*types.Stats, error) {

	orders, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	stats := types.Stats{TotalOrders: len(orders)}
	today := startOfToday()
	for _, o := range orders {
		if o.Status == types.PendingStatus {
			stats.PendingOrders++
		}
		if !o.Timestamp.Before(today) {
			stats.TodayOrders++
			stats.TodayRevenue += o.Total
		}
	}
	return &stats, nil
}

// matchAcked pairs a bulk-sync echo with the submitted record. The echo may
// carry a freshly assigned server id, so the order number is the reliable
// handle here.
func matchAcked(pending []types.Order, canonical types.Order) *types.Order {
	for i := range pending {
		if canonical.OrderNumber != "" && pending[i].OrderNumber == canonical.OrderNumber {
			return &pending[i]
		}
	}
	for i := range pending {
		if canonical.ServerID != "" && pending[i].ServerID == canonical.ServerID {
			return &pending[i]
		}
	}
	return nil
}

func matchLocal(locals []types.Order, remote types.Order) *types.Order {
	for i := range locals {
		if remote.ServerID != "" && locals[i].ServerID == remote.ServerID {
			return &locals[i]
		}
	}
	for i := range locals {
		if remote.OrderNumber != "" && locals[i].OrderNumber == remote.OrderNumber {
			return &locals[i]
		}
	}
	return nil
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func sortNewestFirst(orders []types.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp.After(orders[j].Timestamp)
	})
}
