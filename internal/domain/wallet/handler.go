package wallet

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutorhub/wallet-api/internal/middleware"
	"github.com/tutorhub/wallet-api/internal/pkg/response"
	"github.com/tutorhub/wallet-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type transferRequest struct {
	FromUserID    string `json:"fromUserId" validate:"required"`
	ToUserID      string `json:"toUserId" validate:"required"`
	Tokens        int64  `json:"tokens" validate:"required,gt=0"`
	ReservationID string `json:"reservationId" validate:"required"`
	Description   string `json:"description"`
}

type refundRequest struct {
	FromUserID    string `json:"fromUserId" validate:"required"`
	ToUserID      string `json:"toUserId" validate:"required"`
	ReservationID string `json:"reservationId" validate:"required"`
	CancelledBy   string `json:"cancelledBy" validate:"required,wallet_role"`
	Reason        string `json:"reason"`
	Tokens        int64  `json:"tokens"`
}

func (h *Handler) getWallet(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			response.Unauthorized(w, "unauthorized")
			return
		}
		email := middleware.GetEmail(r.Context())

		wallet, err := h.svc.GetOrCreateWallet(r.Context(), userID, role, email)
		if err != nil {
			response.InternalError(w)
			return
		}
		response.OK(w, wallet)
	}
}

func (h *Handler) getBalance(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			response.Unauthorized(w, "unauthorized")
			return
		}

		balance, err := h.svc.GetTokenBalance(r.Context(), userID, role)
		if err != nil {
			response.InternalError(w)
			return
		}
		response.OK(w, map[string]interface{}{
			"tokenBalance": balance,
			"role":         role,
		})
	}
}

func (h *Handler) CheckStudentTokens(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	tokens, err := strconv.ParseInt(chi.URLParam(r, "tokens"), 10, 64)
	if err != nil || tokens <= 0 {
		response.BadRequest(w, "tokens must be a positive integer")
		return
	}

	hasEnough, err := h.svc.HasEnoughTokens(r.Context(), userID, RoleStudent, tokens)
	if err != nil {
		response.InternalError(w)
		return
	}
	balance, err := h.svc.GetTokenBalance(r.Context(), userID, RoleStudent)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"hasEnoughTokens": hasEnough,
		"requiredTokens":  tokens,
		"currentBalance":  balance,
		"role":            RoleStudent,
	})
}

func (h *Handler) getTransactions(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			response.Unauthorized(w, "unauthorized")
			return
		}

		typeFilter := strings.ToUpper(r.URL.Query().Get("type"))
		if verr := validator.ValidateVar(typeFilter, "tx_type"); verr != nil {
			response.BadRequest(w, "type must be PURCHASE, USAGE or REFUND")
			return
		}

		var (
			txs []*Transaction
			err error
		)
		if typeFilter == "" {
			txs, err = h.svc.GetTransactions(r.Context(), userID, role)
		} else {
			txs, err = h.svc.GetTransactionsByType(r.Context(), userID, role, TransactionType(typeFilter))
		}
		if err != nil {
			response.InternalError(w)
			return
		}
		if txs == nil {
			txs = []*Transaction{}
		}
		response.OK(w, txs)
	}
}

func (h *Handler) getTransactionsRange(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			response.Unauthorized(w, "unauthorized")
			return
		}

		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			response.BadRequest(w, "start must be an RFC3339 timestamp")
			return
		}
		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if err != nil {
			response.BadRequest(w, "end must be an RFC3339 timestamp")
			return
		}
		if end.Before(start) {
			response.BadRequest(w, "end must not be before start")
			return
		}

		txs, err := h.svc.GetTransactionsBetween(r.Context(), userID, role, start, end)
		if err != nil {
			response.InternalError(w)
			return
		}
		if txs == nil {
			txs = []*Transaction{}
		}
		response.OK(w, txs)
	}
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	description := req.Description
	if description == "" {
		description = "Booking payment: " + req.ReservationID
	}

	result, err := h.svc.TransferTokens(r.Context(), req.FromUserID, req.ToUserID, req.Tokens, description, req.ReservationID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.OK(w, result)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "Booking cancellation"
	}

	switch strings.ToUpper(req.CancelledBy) {
	case string(RoleStudent):
		// Student cancelled: the tutor keeps a penalty, paid from the
		// student wallet.
		if req.Tokens <= 0 {
			response.BadRequest(w, "tokens must be a positive integer when cancelledBy is STUDENT")
			return
		}
		result, err := h.svc.TransferTokens(r.Context(), req.FromUserID, req.ToUserID, req.Tokens,
			reason+" - cancelled by student", req.ReservationID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		response.OK(w, result)
	case string(RoleTutor):
		// Tutor cancelled: reverse the booking charge in full.
		result, err := h.svc.RefundTokensByBooking(r.Context(), req.FromUserID, req.ToUserID,
			req.ReservationID, reason+" - cancelled by tutor")
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		response.OK(w, result)
	default:
		response.BadRequest(w, "cancelledBy must be STUDENT or TUTOR")
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		response.NotFound(w, "wallet not found")
	case errors.Is(err, ErrInsufficientTokens):
		response.Conflict(w, "insufficient token balance")
	case errors.Is(err, ErrBookingTransactionNotFound):
		response.NotFound(w, "no transaction found for booking")
	case errors.Is(err, ErrInvalidRefundAmount):
		response.UnprocessableEntity(w, "refund amount must be greater than zero")
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, "tokens must be a positive integer")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/student", h.getWallet(RoleStudent))
	r.Get("/tutor", h.getWallet(RoleTutor))
	r.Get("/balance/student", h.getBalance(RoleStudent))
	r.Get("/balance/tutor", h.getBalance(RoleTutor))
	r.Get("/student/check/{tokens}", h.CheckStudentTokens)
	r.Get("/student/transactions", h.getTransactions(RoleStudent))
	r.Get("/student/transactions/range", h.getTransactionsRange(RoleStudent))
	r.Get("/tutor/transactions", h.getTransactions(RoleTutor))
	r.Get("/tutor/transactions/range", h.getTransactionsRange(RoleTutor))
	r.Post("/transfer", h.Transfer)
	r.Post("/refund", h.Refund)

	return r
}
