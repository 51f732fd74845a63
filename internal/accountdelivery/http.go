// Package accountdelivery manages delivery layer of accounts.
package accountdelivery

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
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides service layer interface needed by account delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package accountdelivery
type Service interface {
	Create(ctx context.Context, owner, holderName string, balance decimal.Decimal) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	List(ctx context.Context, pageNo, pageSize int, sortBy, sortDir string) (domain.Page[domain.Account], error)
	Delete(ctx context.Context, id int64) error
}

// Handler facilitates account delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns account handler.
func NewHandler(as Service) *Handler {
	return &Handler{service: as}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNegativeBalance),
		errors.Is(err, domain.ErrInvalidHolderName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountOwnerMismatch):
		return http.StatusForbidden
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

type createRequest struct {
	HolderName string `json:"account_holder_name" binding:"required,min=1,max=100"`
	Balance    string `json:"balance" binding:"required,nonnegative_amount"`
}

// Create handles http request to open an account for the acting user.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	// Validated by the nonnegative_amount tag.
	balance := decimal.RequireFromString(req.Balance)

	account, err := h.service.Create(ctx, middleware.Principal(gctx).Username, req.HolderName, balance)
	if err != nil {
		l.Info().Err(err).Send()
		respondError(gctx, err)

		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: account})
}

type idRequest struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// Get handles http request to get account. Administrators may read any account.
func (h *Handler) Get(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req idRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	account, err := h.service.Get(ctx, req.ID)
	if err != nil {
		l.Info().Err(err).Send()
		respondError(gctx, err)

		return
	}

	principal := middleware.Principal(gctx)
	if !principal.IsAdmin() && account.Owner != principal.Username {
		l.Warn().Err(domain.ErrAccountOwnerMismatch).Int64("account_id", req.ID).Send()
		respondError(gctx, domain.ErrAccountOwnerMismatch)

		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: account})
}

type listRequest struct {
	PageNo   int    `form:"page_no,default=0" binding:"min=0"`
	PageSize int    `form:"page_size,default=3" binding:"min=1,max=100"`
	SortBy   string `form:"sort_by,default=id"`
	SortDir  string `form:"sort_dir,default=asc" binding:"oneof=asc desc ASC DESC"`
}

// List handles http request to list all accounts page by page.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	page, err := h.service.List(ctx, req.PageNo, req.PageSize, req.SortBy, req.SortDir)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: page})
}

// Delete handles http request to delete account.
func (h *Handler) Delete(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req idRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	if err := h.service.Delete(ctx, req.ID); err != nil {
		l.Info().Err(err).Send()
		respondError(gctx, err)

		return
	}

	l.Info().Int64("account_id", req.ID).Msg("account deleted")
	gctx.Status(http.StatusNoContent)
}
