package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/locator"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/retry"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/types"
)

const requestTimeout = 10 * time.Second

// ServerLocator yields the base URL requests go to. The client invalidates
// it when requests keep failing at the network level, forcing a re-probe.
type ServerLocator interface {
	Resolve(ctx context.Context) locator.Resolution
	Invalidate()
}

// Client is a typed client for the POS backend REST surface. Transient
// failures (network errors, 5xx, 429) are retried with exponential backoff.
type Client struct {
	locator ServerLocator
	http    *resty.Client
	backoff retry.BackoffOptions
}

func NewClient(loc ServerLocator) *Client {
	return &Client{
		locator: loc,
		http:    resty.New().SetTimeout(requestTimeout),
		backoff: retry.BackoffOptions{Retryable: retry.IsRetryable},
	}
}

// SetBackoff overrides the retry policy, used by sync paths that want to
// fail fast and by tests.
func (c *Client) SetBackoff(opts retry.BackoffOptions) {
	if opts.Retryable == nil {
		opts.Retryable = retry.IsRetryable
	}
	c.backoff = opts
}

func (c *Client) baseURL(ctx context.Context) string {
	return c.locator.Resolve(ctx).URL
}

func (c *Client) do(ctx context.Context, op func() error) error {
	err := retry.Backoff(ctx, op, c.backoff)
	if retry.IsNetworkError(err) {
		c.locator.Invalidate()
	}
	return err
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	return fmt.Errorf("%w", &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())})
}

func notFound(err error, sentinel error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return fmt.Errorf("%w", sentinel)
	}
	return err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).Get(c.baseURL(ctx) + "/health"))
	})
}

func (c *Client) GetOrders(ctx context.Context, status types.Status) ([]types.Order, error) {
	var orders []types.Order
	err := c.do(ctx, func() error {
		req := c.http.R().SetContext(ctx).SetResult(&orders)
		if status != "" {
			req.SetQueryParam("status", string(status))
		}
		return check(req.Get(c.baseURL(ctx) + "/orders"))
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) GetOrderByNumber(ctx context.Context, number string) (*types.Order, error) {
	var order types.Order
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetResult(&order).
			Get(c.baseURL(ctx) + "/orders/number/" + number))
	})
	if err != nil {
		return nil, notFound(err, ErrOrderNotExists)
	}
	return &order, nil
}

func (c *Client) CreateOrder(ctx context.Context, order types.Order) (*types.Order, error) {
	var created types.Order
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(order).
			SetResult(&created).
			Post(c.baseURL(ctx) + "/orders"))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// SyncOrders submits locally queued orders to the bulk endpoint and returns
// the server's canonical representation of every acknowledged order.
func (c *Client) SyncOrders(ctx context.Context, orders []types.Order) ([]types.Order, error) {
	var result struct {
		Orders []types.Order `json:"orders"`
	}
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(map[string]any{"orders": orders}).
			SetResult(&result).
			Post(c.baseURL(ctx) + "/orders/sync"))
	})
	if err != nil {
		return nil, err
	}
	return result.Orders, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, serverID string, status types.Status) error {
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(map[string]string{"status": string(status)}).
			Patch(c.baseURL(ctx) + "/orders/" + serverID))
	})
	return notFound(err, ErrOrderNotExists)
}

func (c *Client) DeleteOrder(ctx context.Context, serverID string) error {
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			Delete(c.baseURL(ctx) + "/orders/" + serverID))
	})
	return notFound(err, ErrOrderNotExists)
}

func (c *Client) GetStats(ctx context.Context) (*types.Stats, error) {
	var stats types.Stats
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetResult(&stats).
			Get(c.baseURL(ctx) + "/stats"))
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetProducts(ctx context.Context) ([]types.Product, error) {
	var products []types.Product
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetResult(&products).
			Get(c.baseURL(ctx) + "/products"))
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) CreateProduct(ctx context.Context, product types.Product) (*types.Product, error) {
	var created types.Product
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(product).
			SetResult(&created).
			Post(c.baseURL(ctx) + "/products"))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) BulkCreateProducts(ctx context.Context, products []types.Product) error {
	return c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(map[string]any{"products": products}).
			Post(c.baseURL(ctx) + "/products/bulk"))
	})
}

func (c *Client) UpdateProduct(ctx context.Context, id string, product types.Product) (*types.Product, error) {
	var updated types.Product
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetBody(product).
			SetResult(&updated).
			Put(c.baseURL(ctx) + "/products/" + id))
	})
	if err != nil {
		return nil, notFound(err, ErrProductNotExists)
	}
	return &updated, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	err := c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			Delete(c.baseURL(ctx) + "/products/" + id))
	})
	return notFound(err, ErrProductNotExists)
}

type BatchOperation struct {
	Resource string          `json:"resource"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data"`
}

// SyncBatch submits a mixed batch of queued operations. The idempotency key
// makes a timer-triggered resubmission of the same batch safe.
func (c *Client) SyncBatch(ctx context.Context, operations []BatchOperation) error {
	key := uuid.NewString()
	return c.do(ctx, func() error {
		return check(c.http.R().SetContext(ctx).
			SetHeader("X-Idempotency-Key", key).
			SetBody(map[string]any{"operations": operations}).
			Post(c.baseURL(ctx) + "/sync/batch"))
	})
}
