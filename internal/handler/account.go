package handler

import (
	"net/http"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	portfolioSvc *service.PortfolioService
	orderSvc     *service.OrderService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(portfolioSvc *service.PortfolioService, orderSvc *service.OrderService) *AccountHandler {
	return &AccountHandler{portfolioSvc: portfolioSvc, orderSvc: orderSvc}
}

type registerRequest struct {
	AccountID string            `json:"account_id"`
	Balances  map[string]string `json:"balances"`
}

type depositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
	Total  decimal.Decimal `json:"total"`
}

type portfolioResponse struct {
	AccountID  string            `json:"account_id"`
	Balances   []balanceResponse `json:"balances"`
	TotalValue decimal.Decimal   `json:"total_value"`
	TotalPnL   decimal.Decimal   `json:"total_pnl"`
	ValuedAt   string            `json:"valued_at"`
}

type listOrdersResponse struct {
	Orders []orderSummaryResponse `json:"orders"`
	Total  int                    `json:"total"`
	Page   int                    `json:"page"`
	Limit  int                    `json:"limit"`
}

type listTradesResponse struct {
	Trades []tradeResponse `json:"trades"`
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	portfolio, err := h.portfolioSvc.Register(service.RegisterAccountRequest{
		AccountID: req.AccountID,
		Balances:  req.Balances,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildPortfolioResponse(portfolio))
}

// GetPortfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.portfolioSvc.GetPortfolio(chi.URLParam(r, "account_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPortfolioResponse(portfolio))
}

// Deposit handles POST /accounts/{account_id}/deposits and returns the
// updated balance of the deposited asset.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	balance, err := h.portfolioSvc.Deposit(chi.URLParam(r, "account_id"), req.Asset, req.Amount)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBalanceResponse(balance))
}

// ListOrders handles GET /accounts/{account_id}/orders.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		status = &s
	}

	page, ok := queryInt(r, "page", 1)
	if !ok {
		WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
		return
	}
	limit, ok := queryInt(r, "limit", 20)
	if !ok {
		WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
		return
	}

	orders, total, err := h.orderSvc.ListOrders(chi.URLParam(r, "account_id"), status, page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := listOrdersResponse{
		Orders: make([]orderSummaryResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderSummary(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /accounts/{account_id}/trades.
func (h *AccountHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	q := r.URL.Query()
	trades, err := h.orderSvc.ListTrades(service.ListTradesRequest{
		AccountID: accountID,
		Symbol:    q.Get("symbol"),
		Sort:      q.Get("sort"),
		Dir:       q.Get("dir"),
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, listTradesResponse{Trades: buildTradeResponses(trades, accountID)})
}

func buildBalanceResponse(b domain.Balance) balanceResponse {
	return balanceResponse{Asset: b.Asset, Free: b.Free, Locked: b.Locked, Total: b.Total}
}

func buildPortfolioResponse(p *domain.Portfolio) portfolioResponse {
	resp := portfolioResponse{
		AccountID:  p.AccountID,
		Balances:   make([]balanceResponse, len(p.Balances)),
		TotalValue: p.TotalValue,
		TotalPnL:   p.TotalPnL,
		ValuedAt:   formatTime(p.ValuedAt),
	}
	for i, b := range p.Balances {
		resp.Balances[i] = buildBalanceResponse(b)
	}
	return resp
}
