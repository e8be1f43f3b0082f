package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/api/middleware"
	"github.com/example/order-fulfillment/internal/command"
	"github.com/example/order-fulfillment/internal/credit"
	"github.com/example/order-fulfillment/internal/domain/location"
	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/domain/stock"
	"github.com/example/order-fulfillment/internal/infrastructure/store"
	"github.com/example/order-fulfillment/internal/outbox"
	"github.com/example/order-fulfillment/internal/query"
)

// lockRetries bounds how often a request is retried after a lock timeout
// before it surfaces as 503.
const lockRetries = 2

var errInvalidID = errors.New("invalid or missing id")

// Requeuer puts a dead-lettered outbox event back in rotation.
type Requeuer interface {
	RequeueDead(ctx context.Context, id uuid.UUID) error
}

type Handlers struct {
	commands *command.Handler
	queries  *query.Handler
	requeuer Requeuer
	logger   *logrus.Logger
}

func NewHandlers(commands *command.Handler, queries *query.Handler, requeuer Requeuer, logger *logrus.Logger) *Handlers {
	return &Handlers{
		commands: commands,
		queries:  queries,
		requeuer: requeuer,
		logger:   logger,
	}
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateOrder
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}

	o, err := h.commands.CreateOrder(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	var f order.Filter
	if s := r.URL.Query().Get("status"); s != "" {
		status := order.Status(s)
		f.Status = &status
	}
	if c := r.URL.Query().Get("customer_id"); c != "" {
		customerID, err := uuid.Parse(c)
		if err != nil {
			h.writeError(w, r, errInvalidID)
			return
		}
		f.CustomerID = &customerID
	}
	f.IncludeArchived = r.URL.Query().Get("include_archived") == "true"

	orders, err := h.queries.ListOrders(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.queries.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.withLockRetry(r.Context(), func() error {
		return h.commands.ArchiveOrder(r.Context(), command.ArchiveOrder{OrderID: id})
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AddLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var cmd command.AddLine
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	cmd.OrderID = id

	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return h.commands.AddLine(ctx, cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) RemoveLine(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lineID, err := pathID(r.URL.Path, 3)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cmd := command.RemoveLine{OrderID: orderID, LineID: lineID}
	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return h.commands.RemoveLine(ctx, cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var cmd command.SetDiscount
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	cmd.OrderID = id

	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return h.commands.SetDiscount(ctx, cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cmd := command.ConfirmOrder{OrderID: id, ActorID: middleware.ActorID(r.Context())}
	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return h.commands.ConfirmOrder(ctx, cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Body is optional; a bare POST cancels without a reason.
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	cmd := command.CancelOrder{OrderID: id, ActorID: middleware.ActorID(r.Context()), Reason: body.Reason}
	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return h.commands.CancelOrder(ctx, cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) StartPreparation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return h.commands.StartPreparation(ctx, command.StartPreparation{OrderID: id})
	})
}

func (h *Handlers) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return h.commands.MarkReady(ctx, command.MarkReady{OrderID: id})
	})
}

func (h *Handlers) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return h.commands.ShipOrder(ctx, command.ShipOrder{OrderID: id})
	})
}

func (h *Handlers) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return h.commands.DeliverOrder(ctx, command.DeliverOrder{OrderID: id})
	})
}

func (h *Handlers) InvoiceOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
		return h.commands.InvoiceOrder(ctx, command.InvoiceOrder{OrderID: id})
	})
}

// transition runs a bare order state change addressed by path id.
func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*order.Order, error)) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.runOrderCommand(r.Context(), func(ctx context.Context) (*order.Order, error) {
		return fn(ctx, id)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderReservations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reservations, err := h.queries.GetOrderReservations(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reservations)
}

// Stock Handlers

func (h *Handlers) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var cmd command.ReceiveStock
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	if actor := middleware.ActorID(r.Context()); actor != uuid.Nil {
		cmd.ActorID = actor
	}

	var item *stock.Item
	err := h.withLockRetry(r.Context(), func() error {
		var err error
		item, err = h.commands.ReceiveStock(r.Context(), cmd)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handlers) WithdrawStock(w http.ResponseWriter, r *http.Request) {
	var cmd command.WithdrawStock
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	if actor := middleware.ActorID(r.Context()); actor != uuid.Nil {
		cmd.ActorID = actor
	}

	var item *stock.Item
	err := h.withLockRetry(r.Context(), func() error {
		var err error
		item, err = h.commands.WithdrawStock(r.Context(), cmd)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handlers) TransferStock(w http.ResponseWriter, r *http.Request) {
	var cmd command.TransferStock
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	if actor := middleware.ActorID(r.Context()); actor != uuid.Nil {
		cmd.ActorID = actor
	}

	err := h.withLockRetry(r.Context(), func() error {
		return h.commands.TransferStock(r.Context(), cmd)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var cmd command.AdjustStock
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}
	if actor := middleware.ActorID(r.Context()); actor != uuid.Nil {
		cmd.ActorID = actor
	}

	var item *stock.Item
	err := h.withLockRetry(r.Context(), func() error {
		var err error
		item, err = h.commands.AdjustStock(r.Context(), cmd)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handlers) GetStockLevels(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(r.URL.Query().Get("product_id"))
	if err != nil {
		h.writeError(w, r, errInvalidID)
		return
	}
	var variantID *uuid.UUID
	if v := r.URL.Query().Get("variant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.writeError(w, r, errInvalidID)
			return
		}
		variantID = &id
	}

	levels, err := h.queries.GetStockLevels(r.Context(), productID, variantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, levels)
}

func (h *Handlers) GetItemMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 2)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	movements, err := h.queries.GetItemMovements(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

// Location Handlers

func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateLocation
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.writeError(w, r, errInvalidBody(err))
		return
	}

	loc, err := h.commands.CreateLocation(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, loc)
}

func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	node, err := h.queries.GetLocation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (h *Handlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.queries.ListLocations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, locations)
}

// Outbox Handlers

func (h *Handlers) GetOutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.GetOutboxStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) ListDeadEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, r, errInvalidID)
			return
		}
		limit = n
	}

	dead, err := h.queries.ListDeadEvents(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dead == nil {
		dead = []*outbox.Event{}
	}
	respondJSON(w, http.StatusOK, dead)
}

func (h *Handlers) RequeueDeadEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, 2)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.requeuer.RequeueDead(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

// runOrderCommand wraps an order command with lock retries.
func (h *Handlers) runOrderCommand(ctx context.Context, fn func(ctx context.Context) (*order.Order, error)) (*order.Order, error) {
	var o *order.Order
	err := h.withLockRetry(ctx, func() error {
		var err error
		o, err = fn(ctx)
		return err
	})
	return o, err
}

// withLockRetry retries fn after lock timeouts. Contention on hot rows
// usually clears within milliseconds; what survives all attempts surfaces
// as 503 so the caller backs off.
func (h *Handlers) withLockRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, store.ErrLockTimeout) || attempt >= lockRetries {
			return err
		}
		h.logger.WithField("attempt", attempt+1).Warn("[API] lock timeout, retrying")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("[API] request failed")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case isBadRequest(err):
		return http.StatusBadRequest
	case isNotFound(err):
		return http.StatusNotFound
	case isConflict(err):
		return http.StatusConflict
	case errors.Is(err, store.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, order.ErrOrderNotFound) ||
		errors.Is(err, order.ErrLineNotFound) ||
		errors.Is(err, stock.ErrItemNotFound) ||
		errors.Is(err, stock.ErrReservationNotFound) ||
		errors.Is(err, location.ErrNotFound) ||
		errors.Is(err, outbox.ErrEventNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, order.ErrInvalidStatus) ||
		errors.Is(err, order.ErrOrderCanceled) ||
		errors.Is(err, order.ErrOrderShipped) ||
		errors.Is(err, order.ErrNotDraft) ||
		errors.Is(err, order.ErrEmptyOrder) ||
		errors.Is(err, order.ErrDiscountApprovalRequired) ||
		errors.Is(err, order.ErrCreditExceeded) ||
		errors.Is(err, order.ErrNotArchivable) ||
		errors.Is(err, order.ErrOrderArchived) ||
		errors.Is(err, stock.ErrInsufficientStock) ||
		errors.Is(err, stock.ErrInsufficientStockAcrossLocations) ||
		errors.Is(err, stock.ErrOverRelease) ||
		errors.Is(err, stock.ErrNegativePhysical) ||
		errors.Is(err, stock.ErrAdjustBelowReserved) ||
		errors.Is(err, stock.ErrReservationClosed) ||
		errors.Is(err, location.ErrInvalidParent) ||
		errors.Is(err, outbox.ErrNotDead) ||
		errors.Is(err, store.ErrConflict)
}

func isBadRequest(err error) bool {
	return errors.Is(err, command.ErrCustomerRequired) ||
		errors.Is(err, command.ErrProductRequired) ||
		errors.Is(err, command.ErrLocationRequired) ||
		errors.Is(err, order.ErrInvalidLine) ||
		errors.Is(err, order.ErrInvalidDiscount) ||
		errors.Is(err, stock.ErrInvalidQuantity) ||
		errors.Is(err, credit.ErrUnpriced) ||
		errors.Is(err, errInvalidID) ||
		errors.Is(err, errBadBody)
}

var errBadBody = errors.New("invalid request body")

func errInvalidBody(err error) error {
	return fmt.Errorf("%w: %v", errBadBody, err)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// pathID parses the path segment at index (0-based, after trimming the
// leading slash) as a UUID.
func pathID(path string, index int) (uuid.UUID, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if index >= len(parts) {
		return uuid.Nil, errInvalidID
	}
	id, err := uuid.Parse(parts[index])
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}
