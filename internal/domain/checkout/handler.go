package checkout

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/wallet-api/internal/middleware"
	"github.com/tutorhub/wallet-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createSessionRequest struct {
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
}

type confirmRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req createSessionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	info, err := h.svc.CreateSession(userID, req.Quantity, req.Currency, req.Name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create checkout session")
		response.InternalError(w)
		return
	}
	response.OK(w, info)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	result, err := h.svc.ConfirmPayment(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingSessionID):
			response.BadRequest(w, "sessionId is required")
		case errors.Is(err, ErrPaymentNotCompleted):
			response.BadRequest(w, "payment has not been completed")
		case errors.Is(err, ErrIncompleteMetadata):
			response.BadRequest(w, "session metadata is incomplete")
		default:
			log.Error().Err(err).Msg("Failed to confirm payment")
			response.InternalError(w)
		}
		return
	}
	response.OK(w, result)
}

func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"publicKey": h.svc.PublicKey()})
}

func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status":    "success",
		"sessionId": r.URL.Query().Get("session_id"),
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status":  "canceled",
		"message": "Payment canceled by user",
	})
}

// Webhook acknowledges Stripe events. Purchases are credited through
// the confirm endpoint; events are only logged here.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "unreadable payload")
		return
	}
	log.Info().Int("payload_bytes", len(body)).Msg("Stripe webhook received")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/public-key", h.PublicKey)
	r.Get("/success", h.Success)
	r.Get("/cancel", h.Cancel)
	r.Post("/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.CreateSession)
		r.Post("/confirm", h.ConfirmPayment)
	})

	return r
}
