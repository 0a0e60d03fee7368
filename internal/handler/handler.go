// Package handler содержит HTTP-обработчики API гиг-платформы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ptanmay/gigworks-system/internal/middleware"
	"github.com/ptanmay/gigworks-system/internal/model"
	"github.com/ptanmay/gigworks-system/internal/repository"
	"github.com/ptanmay/gigworks-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (string, error)
	AuthenticateUser(ctx context.Context, login, password string) (string, error)
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	SubmitWithdrawal(ctx context.Context, userID string, amount float64, upi string) (*model.WithdrawalRequest, error)
	GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.WithdrawalRequest, error)
	GetGig(ctx context.Context, gigID string) (*model.Gig, error)
	CompleteGig(ctx context.Context, gigID string, rating float64, review string) error
}

// Handler реализует HTTP-обработчики API гиг-платформы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, validate *validator.Validate) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validate,
	}
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeToken(w, userID)
}

// Login выполняет аутентификацию пользователя и выдачу токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeToken(w, userID)
}

// writeToken устанавливает cookie авторизации и возвращает токен в теле
// ответа для клиентов, работающих по схеме Bearer.
func (h *Handler) writeToken(w http.ResponseWriter, userID string) {
	if err := h.authMiddleware.SetAuthCookie(w, userID); err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.authMiddleware.IssueToken(userID)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse{Token: token}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetWallet возвращает кошелёк текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get wallet error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(wallet); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type withdrawRequest struct {
	UserID string  `json:"userId" validate:"omitempty,uuid"`
	Amount float64 `json:"amount"`
	UPI    string  `json:"upi"`
}

type withdrawResponse struct {
	Success bool                     `json:"success"`
	Error   string                   `json:"error,omitempty"`
	Request *model.WithdrawalRequest `json:"request,omitempty"`
}

// Withdraw создаёт заявку на вывод средств для текущего пользователя.
// Комиссия и сумма к выплате возвращаются в ответе: клиент показывает их
// пользователю, баланс при создании заявки не списывается.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeWithdrawError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWithdrawError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeWithdrawError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// userId в теле опционален, но подменять чужой кошелёк нельзя.
	if req.UserID != "" && req.UserID != userID {
		writeWithdrawError(w, http.StatusForbidden, "user mismatch")
		return
	}

	created, err := h.service.SubmitWithdrawal(r.Context(), userID, req.Amount, req.UPI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeWithdrawError(w, http.StatusBadRequest, "Minimum withdrawal is ₹50")
		case errors.Is(err, repository.ErrInsufficientBalance):
			writeWithdrawError(w, http.StatusPaymentRequired, "Amount exceeds wallet balance")
		case errors.Is(err, service.ErrInvalidUPI):
			writeWithdrawError(w, http.StatusBadRequest, "Invalid UPI ID format")
		case errors.Is(err, repository.ErrWalletNotFound):
			writeWithdrawError(w, http.StatusNotFound, "Wallet not found")
		default:
			h.logger.Error("withdraw error", zap.Error(err), zap.String("userID", userID))
			writeWithdrawError(w, http.StatusInternalServerError, "Request failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(withdrawResponse{Success: true, Request: created}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func writeWithdrawError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(withdrawResponse{Success: false, Error: msg})
}

// GetWithdrawals возвращает историю заявок текущего пользователя на вывод средств.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.service.GetWithdrawalsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get withdrawals error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(withdrawals); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type completeGigRequest struct {
	GigID  string  `json:"gigId" validate:"required,uuid"`
	Rating float64 `json:"rating"`
	Review string  `json:"review"`
}

type completeGigResponse struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CompleteGig закрывает гиг с оценкой и отзывом от имени текущего пользователя.
func (h *Handler) CompleteGig(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeCompleteGig(w, http.StatusUnauthorized, completeGigResponse{Error: "Unauthorized"})
		return
	}

	var req completeGigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCompleteGig(w, http.StatusBadRequest, completeGigResponse{Error: "invalid request body"})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeCompleteGig(w, http.StatusBadRequest, completeGigResponse{Error: "invalid request body"})
		return
	}

	err := h.service.CompleteGig(r.Context(), req.GigID, req.Rating, req.Review)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrGigNotFound):
			writeCompleteGig(w, http.StatusNotFound, completeGigResponse{Error: "Gig not found"})
		case errors.Is(err, repository.ErrGigAlreadySettled):
			writeCompleteGig(w, http.StatusConflict, completeGigResponse{Error: "Gig already completed"})
		default:
			h.logger.Error("complete gig error", zap.Error(err),
				zap.String("gigID", req.GigID), zap.String("userID", userID))
			writeCompleteGig(w, http.StatusInternalServerError, completeGigResponse{Error: "Failed to update gig"})
		}
		return
	}

	writeCompleteGig(w, http.StatusOK, completeGigResponse{Success: true})
}

func writeCompleteGig(w http.ResponseWriter, status int, resp completeGigResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type gigResponse struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	AssignedWorkerID *string  `json:"assigned_worker_id,omitempty"`
	Price            float64  `json:"price"`
	Status           string   `json:"status"`
	Rating           *float64 `json:"rating,omitempty"`
	Review           *string  `json:"review,omitempty"`
	CreatedAt        string   `json:"created_at"`
	CompletedAt      *string  `json:"completed_at,omitempty"`
}

// GetGig возвращает гиг по идентификатору.
func (h *Handler) GetGig(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	gigID := r.PathValue("gigID")

	gig, err := h.service.GetGig(r.Context(), gigID)
	if err != nil {
		if errors.Is(err, repository.ErrGigNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get gig error", zap.Error(err), zap.String("gigID", gigID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := gigResponse{
		ID:               gig.ID,
		Title:            gig.Title,
		AssignedWorkerID: gig.AssignedWorkerID,
		Price:            gig.Price,
		Status:           string(gig.Status),
		Rating:           gig.Rating,
		Review:           gig.Review,
		CreatedAt:        gig.CreatedAt.Format(time.RFC3339),
	}
	if gig.CompletedAt != nil {
		s := gig.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
