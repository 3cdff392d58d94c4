package handler

import (
	"net/http"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Price     string `json:"price,omitempty"`
}

// orderSummaryResponse is the JSON representation of an order without its
// trades. Price is null for market orders; average_price is null until the
// first fill.
type orderSummaryResponse struct {
	OrderID      string           `json:"order_id"`
	AccountID    string           `json:"account_id"`
	Symbol       string           `json:"symbol"`
	Side         string           `json:"side"`
	Type         string           `json:"type"`
	Amount       decimal.Decimal  `json:"amount"`
	Price        *decimal.Decimal `json:"price"`
	Filled       decimal.Decimal  `json:"filled"`
	Remaining    decimal.Decimal  `json:"remaining"`
	Locked       decimal.Decimal  `json:"locked"`
	Status       string           `json:"status"`
	AveragePrice *decimal.Decimal `json:"average_price"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
	CancelledAt  *string          `json:"cancelled_at"`
}

// orderResponse is a full order with its trades.
type orderResponse struct {
	orderSummaryResponse
	Trades []tradeResponse `json:"trades"`
}

// tradeResponse is a single trade. Side is relative to the account the
// trade is shown to.
type tradeResponse struct {
	TradeID      string          `json:"trade_id"`
	OrderID      string          `json:"order_id"`
	MakerOrderID string          `json:"maker_order_id,omitempty"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Total        decimal.Decimal `json:"total"`
	Fee          decimal.Decimal `json:"fee"`
	ExecutedAt   string          `json:"executed_at"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orderSvc.SubmitOrder(r.Context(), service.SubmitOrderRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Amount:    req.Amount,
		Price:     req.Price,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.CancelOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func buildOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		orderSummaryResponse: buildOrderSummary(o),
		Trades:               buildTradeResponses(o.Trades, o.AccountID),
	}
}

func buildOrderSummary(o *domain.Order) orderSummaryResponse {
	resp := orderSummaryResponse{
		OrderID:     o.OrderID,
		AccountID:   o.AccountID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Type:        string(o.Type),
		Amount:      o.Amount,
		Filled:      o.Filled,
		Remaining:   o.Remaining,
		Locked:      o.Locked,
		Status:      string(o.Status),
		CreatedAt:   formatTime(o.CreatedAt),
		UpdatedAt:   formatTime(o.UpdatedAt),
		CancelledAt: formatTimePtr(o.CancelledAt),
	}
	if o.Type == domain.OrderTypeLimit {
		price := o.Price
		resp.Price = &price
	}
	if avg, ok := o.AveragePrice(); ok {
		resp.AveragePrice = &avg
	}
	return resp
}

// buildTradeResponses converts trades as seen by accountID.
func buildTradeResponses(trades []*domain.Trade, accountID string) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TradeID:      t.TradeID,
			OrderID:      t.OrderID,
			MakerOrderID: t.MakerOrderID,
			Symbol:       t.Symbol,
			Side:         string(t.SideFor(accountID)),
			Price:        t.Price,
			Amount:       t.Amount,
			Total:        t.Total,
			Fee:          t.Fee,
			ExecutedAt:   formatTime(t.ExecutedAt),
		}
	}
	return result
}
