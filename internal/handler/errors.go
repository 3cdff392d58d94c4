package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/efreitasn/spotsim/internal/service"
)

// mapError maps domain errors to HTTP responses.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		WriteError(w, status, "internal_error", "An unexpected error occurred")
		return
	}

	resp := errorResponse{Error: code, Message: err.Error()}
	var recorded *service.RecordedOrderError
	if errors.As(err, &recorded) {
		resp.OrderID = recorded.Order.OrderID
	}
	WriteJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrSymbolNotFound):
		return http.StatusNotFound, "symbol_not_found"
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusConflict, "account_already_exists"
	case errors.Is(err, domain.ErrOrderNotCancellable):
		return http.StatusConflict, "order_not_cancellable"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, domain.ErrNoLiquidity):
		return http.StatusConflict, "no_liquidity"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusConflict, "queue_full"
	case errors.Is(err, domain.ErrStaleDepth):
		return http.StatusServiceUnavailable, "stale_depth"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
