// Package ledgerdelivery manages delivery layer of account ledgers.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/jsonresponse"
)

// TransactionService provides admission interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type TransactionService interface {
	Create(ctx context.Context, accountID int32, req domain.TransactionRequest) (domain.TransactionResult, error)
}

// StatementService provides statement interface needed by ledger delivery layer.
type StatementService interface {
	Get(ctx context.Context, accountID int32) (domain.Statement, error)
}

// HealthChecker reports whether the ledger store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	transactions TransactionService
	statements   StatementService
	health       HealthChecker
}

// NewHandler returns ledger handler.
func NewHandler(ts TransactionService, ss StatementService, hc HealthChecker) *Handler {
	return &Handler{
		transactions: ts,
		statements:   ss,
		health:       hc,
	}
}

type accountURI struct {
	ID int32 `uri:"id"`
}

type createTransactionRequest struct {
	Amount      *int64 `json:"amount" binding:"required,min=0,max=2147483647"`
	Kind        string `json:"kind" binding:"required,oneof=credit debit"`
	Description string `json:"description" binding:"required,description"`
}

// CreateTransaction handles http request to credit or debit an account.
func (h *Handler) CreateTransaction(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusUnprocessableEntity, jsonresponse.Error(err))

		return
	}

	var req createTransactionRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusUnprocessableEntity, jsonresponse.Error(err))

		return
	}

	arg := domain.TransactionRequest{
		Amount:      *req.Amount,
		Kind:        domain.Kind(req.Kind),
		Description: req.Description,
	}

	result, err := h.transactions.Create(ctx, uri.ID, arg)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, result)
}

type statementTransaction struct {
	Kind        domain.Kind `json:"kind"`
	Description string      `json:"description"`
	Amount      int64       `json:"amount"`
	OccurredAt  time.Time   `json:"occurredAt"`
}

type statementResponse struct {
	Balance      domain.StatementBalance `json:"balance"`
	Transactions []statementTransaction  `json:"transactions"`
}

// GetStatement handles http request to get the statement of an account.
func (h *Handler) GetStatement(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusUnprocessableEntity, jsonresponse.Error(err))

		return
	}

	st, err := h.statements.Get(ctx, uri.ID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	res := statementResponse{
		Balance:      st.Balance,
		Transactions: make([]statementTransaction, len(st.Transactions)),
	}

	for i, t := range st.Transactions {
		res.Transactions[i] = statementTransaction{
			Kind:        t.Kind,
			Description: t.Description,
			Amount:      t.Amount,
			OccurredAt:  t.OccurredAt,
		}
	}

	gctx.JSON(http.StatusOK, res)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health handles http request to check service health.
func (h *Handler) Health(gctx *gin.Context) {
	if err := h.health.Ping(gctx.Request.Context()); err != nil {
		gctx.JSON(http.StatusServiceUnavailable, healthResponse{Status: "DOWN"})
		return
	}

	gctx.JSON(http.StatusOK, healthResponse{Status: "UP"})
}

func writeError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		gctx.JSON(http.StatusNotFound, jsonresponse.Error(domain.ErrAccountNotFound))
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInsufficientLimit):
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusUnprocessableEntity, jsonresponse.Error(err))
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrTransient),
		errors.Is(err, domain.ErrLockTimeout):
		l.Warn().Err(err).Send()
		gctx.Header("Retry-After", "1")
		gctx.JSON(http.StatusServiceUnavailable, jsonresponse.Error(err))
	default:
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, jsonresponse.Error(domain.ErrInternal))
	}
}
