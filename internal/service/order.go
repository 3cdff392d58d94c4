package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/engine"
	"github.com/efreitasn/spotsim/internal/events"
	"github.com/efreitasn/spotsim/internal/journal"
	"github.com/efreitasn/spotsim/internal/store"
)

var accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:         true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
}

// SubmitOrderRequest is the raw order input. Decimals are strings so
// their precision survives until validation.
type SubmitOrderRequest struct {
	AccountID string
	Symbol    string
	Side      string
	Type      string
	Amount    string
	Price     string // required for limit, empty for market
}

// RecordedOrderError is returned when an order was recorded but could not
// execute, so the caller can still report its id.
type RecordedOrderError struct {
	Order *domain.Order
	Err   error
}

func (e *RecordedOrderError) Error() string {
	return fmt.Sprintf("order %s: %v", e.Order.OrderID, e.Err)
}

func (e *RecordedOrderError) Unwrap() error { return e.Err }

// ListTradesRequest selects an account's trade history.
type ListTradesRequest struct {
	AccountID string
	Symbol    string
	Sort      string // default timestamp
	Dir       string // asc or desc, default desc
}

// OrderService handles order submission, retrieval, cancellation, and
// history listing. Every state change is journaled and published after
// the engine returns.
type OrderService struct {
	matcher   *engine.Matcher
	ledger    *store.Ledger
	trades    *store.TradeStore
	pairs     *domain.PairRegistry
	journal   journal.Journal
	publisher events.Publisher
	logger    *slog.Logger
}

// NewOrderService creates a new OrderService with the given dependencies.
// A nil journal or publisher disables that sink.
func NewOrderService(
	matcher *engine.Matcher,
	ledger *store.Ledger,
	trades *store.TradeStore,
	pairs *domain.PairRegistry,
	j journal.Journal,
	publisher events.Publisher,
	logger *slog.Logger,
) *OrderService {
	if j == nil {
		j = journal.Nop{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OrderService{
		matcher:   matcher,
		ledger:    ledger,
		trades:    trades,
		pairs:     pairs,
		journal:   j,
		publisher: publisher,
		logger:    logger.With("component", "order_service"),
	}
}

// SubmitOrder validates the request and runs it through the matching
// engine. On success it returns a snapshot of the order with its trades.
// Orders recorded without executing come back as *RecordedOrderError.
func (s *OrderService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*domain.Order, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return nil, err
	}

	var trades []*domain.Trade
	if order.Type == domain.OrderTypeLimit {
		trades, err = s.matcher.SubmitLimitOrder(order)
	} else {
		trades, err = s.matcher.SubmitMarketOrder(order)
	}

	if err != nil && order.OrderID == "" {
		return nil, err
	}

	snapshot, snapErr := s.matcher.Order(order.OrderID)
	if snapErr != nil {
		return nil, snapErr
	}
	s.record(ctx, snapshot, trades)

	if err != nil {
		if errors.Is(err, domain.ErrNoLiquidity) || errors.Is(err, domain.ErrStaleDepth) {
			return nil, &RecordedOrderError{Order: snapshot, Err: err}
		}
		return nil, err
	}

	s.logger.Info("order submitted",
		"order_id", snapshot.OrderID,
		"account_id", snapshot.AccountID,
		"symbol", snapshot.Symbol,
		"type", snapshot.Type,
		"side", snapshot.Side,
		"status", snapshot.Status,
		"trades", len(trades),
	)
	return snapshot, nil
}

func (s *OrderService) buildOrder(req SubmitOrderRequest) (*domain.Order, error) {
	if !accountIDRegex.MatchString(req.AccountID) {
		return nil, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	orderType := domain.OrderType(strings.ToLower(req.Type))
	if orderType != domain.OrderTypeLimit && orderType != domain.OrderTypeMarket {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market", req.Type),
		}
	}
	side := domain.OrderSide(strings.ToLower(req.Side))
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if !s.pairs.Exists(req.Symbol) {
		return nil, domain.ErrSymbolNotFound
	}

	amount, err := domain.ParseDecimal(req.Amount)
	if err != nil {
		return nil, &domain.ValidationError{Message: "amount: " + err.Error()}
	}

	order := &domain.Order{
		AccountID: req.AccountID,
		Symbol:    strings.ToUpper(req.Symbol),
		Side:      side,
		Type:      orderType,
		Amount:    amount,
	}

	switch {
	case orderType == domain.OrderTypeLimit && req.Price == "":
		return nil, &domain.ValidationError{
			Message: "price is required for limit orders",
		}
	case req.Price != "":
		price, err := domain.ParseDecimal(req.Price)
		if err != nil {
			return nil, &domain.ValidationError{Message: "price: " + err.Error()}
		}
		order.Price = price
	}
	return order, nil
}

// record journals the taker, every maker touched by its trades, and the
// trades themselves, then publishes the trades. Failures are logged only.
func (s *OrderService) record(ctx context.Context, taker *domain.Order, trades []*domain.Trade) {
	ctx = context.WithoutCancel(ctx)

	if err := s.journal.RecordOrder(ctx, taker); err != nil {
		s.logger.Error("journal order failed", "order_id", taker.OrderID, "error", err)
	}

	seen := make(map[string]bool)
	for _, t := range trades {
		if t.MakerOrderID == "" || seen[t.MakerOrderID] {
			continue
		}
		seen[t.MakerOrderID] = true
		maker, err := s.matcher.Order(t.MakerOrderID)
		if err != nil {
			continue
		}
		if err := s.journal.RecordOrder(ctx, maker); err != nil {
			s.logger.Error("journal order failed", "order_id", maker.OrderID, "error", err)
		}
	}

	if len(trades) == 0 {
		return
	}
	if err := s.journal.RecordTrades(ctx, trades); err != nil {
		s.logger.Error("journal trades failed", "order_id", taker.OrderID, "error", err)
	}
	if err := s.publisher.TradeExecuted(ctx, trades); err != nil {
		s.logger.Error("publish trades failed", "order_id", taker.OrderID, "error", err)
	}
}

// GetOrder retrieves a snapshot of an order with all its trades.
func (s *OrderService) GetOrder(orderID string) (*domain.Order, error) {
	return s.matcher.Order(orderID)
}

// CancelOrder cancels a pending order and releases its reservation.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.matcher.CancelOrder(orderID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.journal.RecordOrder(ctx, order); err != nil {
		s.logger.Error("journal order failed", "order_id", order.OrderID, "error", err)
	}
	if err := s.publisher.OrderCancelled(ctx, order); err != nil {
		s.logger.Error("publish cancel failed", "order_id", order.OrderID, "error", err)
	}

	s.logger.Info("order cancelled", "order_id", order.OrderID, "account_id", order.AccountID)
	return order, nil
}

// ListOrders returns a paginated list of an account's orders, newest
// first, with optional status filtering.
func (s *OrderService) ListOrders(accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if !s.ledger.Exists(accountID) {
		return nil, 0, domain.ErrAccountNotFound
	}

	if status != nil {
		if !ValidOrderStatuses[*status] {
			return nil, 0, &domain.ValidationError{
				Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: pending, partially_filled, filled, cancelled", *status),
			}
		}
	}

	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	orders, total := s.matcher.Orders(accountID, status, page, limit)
	return orders, total, nil
}

// ListTrades returns an account's trades filtered by symbol and sorted by
// the requested field.
func (s *OrderService) ListTrades(req ListTradesRequest) ([]*domain.Trade, error) {
	if !s.ledger.Exists(req.AccountID) {
		return nil, domain.ErrAccountNotFound
	}

	filter := store.TradeFilter{SortBy: store.SortByTimestamp, Desc: true}
	if req.Symbol != "" {
		pair, ok := s.pairs.Get(req.Symbol)
		if !ok {
			return nil, domain.ErrSymbolNotFound
		}
		filter.Symbol = pair.Symbol
	}
	if req.Sort != "" {
		field := store.TradeSortField(strings.ToLower(req.Sort))
		if !store.ValidTradeSortFields[field] {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("Invalid sort field: '%s'. Must be one of: timestamp, symbol, side, price, amount, total, fee", req.Sort),
			}
		}
		filter.SortBy = field
	}
	switch strings.ToLower(req.Dir) {
	case "", "desc":
	case "asc":
		filter.Desc = false
	default:
		return nil, &domain.ValidationError{
			Message: "dir must be 'asc' or 'desc'",
		}
	}

	return s.trades.ListByAccount(req.AccountID, filter), nil
}
