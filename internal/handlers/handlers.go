package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	logger "github.com/sirupsen/logrus"

	"github.com/taimoorkhan007705-wq/pos-admin/internal/auth"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/locator"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/order"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/store"
	"github.com/taimoorkhan007705-wq/pos-admin/internal/types"
)

var (
	ErrCouldNotParseBody = errors.New("could not parse body")
	ErrAuthDataEmpty     = errors.New("login or password cannot be empty")
)

// OrderService is the sync surface the facade exposes to the dashboard.
type OrderService interface {
	Pull(ctx context.Context) ([]types.Order, error)
	Cached(ctx context.Context) ([]types.Order, error)
	QueueOrder(ctx context.Context, o types.Order) (*types.Order, error)
	Push(ctx context.Context) order.PushResult
	UpdateStatus(ctx context.Context, ref order.Ref, status types.Status) error
	Delete(ctx context.Context, ref order.Ref) error
	LocalStats(ctx context.Context) (*types.Stats, error)
}

// BackendClient is the slice of the POS backend the facade proxies directly.
type BackendClient interface {
	GetStats(ctx context.Context) (*types.Stats, error)
	GetProducts(ctx context.Context) ([]types.Product, error)
	CreateProduct(ctx context.Context, product types.Product) (*types.Product, error)
	BulkCreateProducts(ctx context.Context, products []types.Product) error
	UpdateProduct(ctx context.Context, id string, product types.Product) (*types.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type Connectivity interface {
	Online() bool
}

type ServerLocator interface {
	Resolve(ctx context.Context) locator.Resolution
}

type HandlerSet struct {
	secret               []byte
	cookieExpiresSeconds int
	adminLogin           string
	adminPasswordHash    string
	orders               OrderService
	backend              BackendClient
	connectivity         Connectivity
	locator              ServerLocator
	validate             *validator.Validate
}

func NewHandlerSet(
	secret []byte,
	cookieExpiresSecs int,
	adminLogin string,
	adminPasswordHash string,
	orders OrderService,
	backend BackendClient,
	connectivity Connectivity,
	loc ServerLocator,
) *HandlerSet {
	return &HandlerSet{
		secret:               secret,
		cookieExpiresSeconds: cookieExpiresSecs,
		adminLogin:           adminLogin,
		adminPasswordHash:    adminPasswordHash,
		orders:               orders,
		backend:              backend,
		connectivity:         connectivity,
		locator:              loc,
		validate:             validator.New(),
	}
}

func (h *HandlerSet) parseAuthData(body []byte) (username string, password string, err error) {

	var data struct {
		Username string `json:"login"`
		Password string `json:"password"`
	}

	err = json.Unmarshal(body, &data)
	if err != nil {
		return "", "", ErrCouldNotParseBody
	}

	if data.Username == "" || data.Password == "" {
		return "", "", ErrAuthDataEmpty
	}

	return data.Username, data.Password, nil
}

func (h *HandlerSet) HandleLogin(w http.ResponseWriter, req *http.Request) {

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "Something went wrong",
			http.StatusInternalServerError)
		return
	}

	username, password, err := h.parseAuthData(body)
	if err != nil {
		if errors.Is(err, ErrCouldNotParseBody) {
			http.Error(w, "Could not parse body", http.StatusBadRequest)
		} else {
			http.Error(w, "Login and password cannot be empty", http.StatusBadRequest)
		}
		return
	}

	if username != h.adminLogin || !auth.CheckPasswordHash(password, h.adminPasswordHash) {
		http.Error(w, "Wrong login or password", http.StatusUnauthorized)
		return
	}

	err = auth.SetAuthCookie(username, w, h.secret, h.cookieExpiresSeconds)
	if err != nil {
		http.Error(w, "Something went wrong",
			http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "text/plain")
	_, err = w.Write([]byte("success"))
	if err != nil {
		logger.Error(err.Error())
	}
}

func (h *HandlerSet) HandleGetOrders(w http.ResponseWriter, req *http.Request) {

	orders, err := h.orders.Pull(req.Context())
	if errors.Is(err, order.ErrSyncInProgress) {
		orders, err = h.orders.Cached(req.Context())
	}
	if err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not load orders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, orders)
}

type createOrderRequest struct {
	OrderNumber string            `json:"orderNumber" validate:"required"`
	Status      string            `json:"status"`
	Items       []types.OrderItem `json:"items"`
	Total       float64           `json:"total" validate:"gte=0"`
}

func (h *HandlerSet) HandleCreateOrder(w http.ResponseWriter, req *http.Request) {

	var data createOrderRequest
	if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(data); err != nil {
		http.Error(w, "Invalid order", http.StatusBadRequest)
		return
	}

	status := types.Status(data.Status)
	if status == "" {
		status = types.PendingStatus
	}

	created, err := h.orders.QueueOrder(req.Context(), types.Order{
		OrderNumber: data.OrderNumber,
		Status:      status,
		Items:       data.Items,
		Total:       data.Total,
	})
	if err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not create order", http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		logger.Error(err.Error())
	}
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *HandlerSet) HandleUpdateOrderStatus(w http.ResponseWriter, req *http.Request) {

	var data statusUpdateRequest
	if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(data); err != nil {
		http.Error(w, "Status is required", http.StatusBadRequest)
		return
	}

	ref := parseOrderRef(chi.URLParam(req, "id"))

	err := h.orders.UpdateStatus(req.Context(), ref, types.Status(data.Status))
	if err != nil {
		var notFound *store.OrderNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		logger.Error(err.Error())
		http.Error(w, "Could not update order", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) HandleDeleteOrder(w http.ResponseWriter, req *http.Request) {

	ref := parseOrderRef(chi.URLParam(req, "id"))

	err := h.orders.Delete(req.Context(), ref)
	if err != nil {
		if errors.Is(err, order.ErrDeleteOffline) {
			http.Error(w, "Cannot delete orders while offline", http.StatusConflict)
			return
		}
		var notFound *store.OrderNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		logger.Error(err.Error())
		http.Error(w, "Could not delete order", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) HandleSyncNow(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, h.orders.Push(req.Context()))
}

func (h *HandlerSet) HandleStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]any{
		"online": h.connectivity.Online(),
		"server": h.locator.Resolve(req.Context()),
	})
}

func (h *HandlerSet) HandleGetStats(w http.ResponseWriter, req *http.Request) {

	var stats *types.Stats
	var err error

	if h.connectivity.Online() {
		stats, err = h.backend.GetStats(req.Context())
		if err != nil {
			logger.Warningf("Stats from server unavailable, aggregating locally: %s", err.Error())
		}
	}

	if stats == nil {
		stats, err = h.orders.LocalStats(req.Context())
		if err != nil {
			logger.Error(err.Error())
			http.Error(w, "Could not compute stats", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, stats)
}

func (h *HandlerSet) HandleGetProducts(w http.ResponseWriter, req *http.Request) {

	products, err := h.backend.GetProducts(req.Context())
	if err != nil {
		logger.Error(err.Error())
		http.Error(w, "Product catalog unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, products)
}

type productRequest struct {
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Category string  `json:"category"`
	Image    string  `json:"image"`
}

func (h *HandlerSet) parseProduct(req *http.Request) (*types.Product, error) {
	var data productRequest
	if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
		return nil, ErrCouldNotParseBody
	}
	if err := h.validate.Struct(data); err != nil {
		return nil, err
	}
	return &types.Product{
		Name:     data.Name,
		Price:    data.Price,
		Category: data.Category,
		Image:    data.Image,
	}, nil
}

func (h *HandlerSet) HandleCreateProduct(w http.ResponseWriter, req *http.Request) {

	product, err := h.parseProduct(req)
	if err != nil {
		http.Error(w, "Invalid product", http.StatusBadRequest)
		return
	}

	created, err := h.backend.CreateProduct(req.Context(), *product)
	if err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not create product", http.StatusBadGateway)
		return
	}
	writeJSON(w, created)
}

func (h *HandlerSet) HandleBulkCreateProducts(w http.ResponseWriter, req *http.Request) {

	var data struct {
		Products []productRequest `json:"products" validate:"required,dive"`
	}
	if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
		http.Error(w, "Could not parse body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(data); err != nil {
		http.Error(w, "Invalid products", http.StatusBadRequest)
		return
	}

	products := make([]types.Product, 0, len(data.Products))
	for _, p := range data.Products {
		products = append(products, types.Product{
			Name: p.Name, Price: p.Price, Category: p.Category, Image: p.Image,
		})
	}

	if err := h.backend.BulkCreateProducts(req.Context(), products); err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not import products", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HandlerSet) HandleUpdateProduct(w http.ResponseWriter, req *http.Request) {

	product, err := h.parseProduct(req)
	if err != nil {
		http.Error(w, "Invalid product", http.StatusBadRequest)
		return
	}

	updated, err := h.backend.UpdateProduct(req.Context(), chi.URLParam(req, "id"), *product)
	if err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not update product", http.StatusBadGateway)
		return
	}
	writeJSON(w, updated)
}

func (h *HandlerSet) HandleDeleteProduct(w http.ResponseWriter, req *http.Request) {

	if err := h.backend.DeleteProduct(req.Context(), chi.URLParam(req, "id")); err != nil {
		logger.Error(err.Error())
		http.Error(w, "Could not delete product", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// parseOrderRef turns a path identifier into the three-way order reference.
// A numeric value may be a local key; any value may be a server id or an
// order number, resolution precedence sorts it out.
func parseOrderRef(id string) order.Ref {
	ref := order.Ref{ServerID: id, OrderNumber: id}
	if localID, err := strconv.ParseInt(id, 10, 64); err == nil {
		ref.LocalID = localID
	}
	return ref
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(err.Error())
	}
}
