// Package moneydelivery manages delivery layer of money movements.
package moneydelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides money service interface needed by money delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package moneydelivery
type Service interface {
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal) (domain.TransferResult, error)
	ListTransactions(ctx context.Context, accountID int64, pageNo, pageSize int) (domain.Page[domain.Transaction], error)
}

// AccountGetter reads accounts for ownership checks.
type AccountGetter interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
}

// Handler facilitates money delivery layer logic.
type Handler struct {
	service  Service
	accounts AccountGetter
}

// NewHandler returns money handler.
func NewHandler(ms Service, ag AccountGetter) *Handler {
	return &Handler{
		service:  ms,
		accounts: ag,
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountOwnerMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func respondError(gctx *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		gctx.JSON(status, web.Error(errorspkg.ErrInternal))
		return
	}

	gctx.JSON(status, web.Error(err))
}

// authorize checks that the principal owns the account, or is an administrator
// when allowAdmin is set.
func (h *Handler) authorize(ctx context.Context, principal *tokenpkg.Payload, accountID int64, allowAdmin bool) error {
	if allowAdmin && principal.IsAdmin() {
		return nil
	}

	account, err := h.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	if account.Owner != principal.Username {
		zerolog.Ctx(ctx).Warn().Err(domain.ErrAccountOwnerMismatch).Int64("account_id", accountID).Send()
		return domain.ErrAccountOwnerMismatch
	}

	return nil
}

type idRequest struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required,positive_amount"`
}

type mutation func(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)

func (h *Handler) mutate(gctx *gin.Context, fn mutation) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri idRequest
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	var req amountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	if err := h.authorize(ctx, middleware.Principal(gctx), uri.ID, false); err != nil {
		l.Info().Err(err).Int64("account_id", uri.ID).Send()
		respondError(gctx, err)

		return
	}

	// Validated by the positive_amount tag.
	amount := decimal.RequireFromString(req.Amount)

	account, err := fn(ctx, uri.ID, amount)
	if err != nil {
		l.Info().Err(err).Int64("account_id", uri.ID).Send()
		respondError(gctx, err)

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: account})
}

// Deposit handles http request to deposit money into the principal's account.
func (h *Handler) Deposit(gctx *gin.Context) {
	h.mutate(gctx, h.service.Deposit)
}

// Withdraw handles http request to withdraw money from the principal's account.
func (h *Handler) Withdraw(gctx *gin.Context) {
	h.mutate(gctx, h.service.Withdraw)
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id" binding:"required,min=1"`
	ToAccountID   int64  `json:"to_account_id" binding:"required,min=1"`
	Amount        string `json:"amount" binding:"required,positive_amount"`
}

// Transfer handles http request to move money from the principal's account to another one.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	if err := h.authorize(ctx, middleware.Principal(gctx), req.FromAccountID, false); err != nil {
		l.Info().Err(err).Int64("from_account_id", req.FromAccountID).Send()
		respondError(gctx, err)

		return
	}

	amount := decimal.RequireFromString(req.Amount)

	result, err := h.service.Transfer(ctx, req.FromAccountID, req.ToAccountID, amount)
	if err != nil {
		l.Info().Err(err).
			Int64("from_account_id", req.FromAccountID).
			Int64("to_account_id", req.ToAccountID).
			Send()
		respondError(gctx, err)

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: result})
}

type pageRequest struct {
	PageNo   int `form:"page_no,default=0" binding:"min=0"`
	PageSize int `form:"page_size,default=3" binding:"min=1,max=100"`
}

// ListTransactions handles http request to list the account transactions, newest first.
func (h *Handler) ListTransactions(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri idRequest
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	var req pageRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	if err := h.authorize(ctx, middleware.Principal(gctx), uri.ID, true); err != nil {
		l.Info().Err(err).Int64("account_id", uri.ID).Send()
		respondError(gctx, err)

		return
	}

	page, err := h.service.ListTransactions(ctx, uri.ID, req.PageNo, req.PageSize)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: page})
}
