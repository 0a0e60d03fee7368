package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/ptanmay/gigworks-system/internal/model"
	"github.com/ptanmay/gigworks-system/internal/repository"
)

type stubRepo struct {
	createUserErr error

	getUser    *model.User
	getUserErr error

	wallet    *model.Wallet
	walletErr error

	createdWithdrawal *withdrawalArgs
	withdrawalErr     error

	withdrawals    []model.WithdrawalRequest
	withdrawalsErr error

	gig    *model.Gig
	gigErr error

	completedGigID  string
	completedRating float64
	completedReview string
	completeWorker  *string
	completeErr     error
}

type withdrawalArgs struct {
	userID      string
	amountPaise int64
	feePaise    int64
	payoutPaise int64
	upi         string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, id, login string, passwordHash []byte) error {
	return s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubRepo) CreateWithdrawalRequest(ctx context.Context, id, userID string, amountPaise, feePaise, payoutPaise int64, upi string) (*model.WithdrawalRequest, error) {
	if s.withdrawalErr != nil {
		return nil, s.withdrawalErr
	}
	s.createdWithdrawal = &withdrawalArgs{
		userID:      userID,
		amountPaise: amountPaise,
		feePaise:    feePaise,
		payoutPaise: payoutPaise,
		upi:         upi,
	}
	return &model.WithdrawalRequest{
		ID:           id,
		UserID:       userID,
		Amount:       float64(amountPaise) / 100,
		Fee:          float64(feePaise) / 100,
		PayoutAmount: float64(payoutPaise) / 100,
		UPI:          upi,
		Status:       model.WithdrawalStatusPending,
	}, nil
}

func (s *stubRepo) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.WithdrawalRequest, error) {
	return s.withdrawals, s.withdrawalsErr
}

func (s *stubRepo) GetGig(ctx context.Context, gigID string) (*model.Gig, error) {
	return s.gig, s.gigErr
}

func (s *stubRepo) CompleteGig(ctx context.Context, gigID string, rating float64, review string) (*string, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	s.completedGigID = gigID
	s.completedRating = rating
	s.completedReview = review
	return s.completeWorker, nil
}

func TestSubmitWithdrawal_BelowMinimum(t *testing.T) {
	// Сумма меньше минимума отклоняется до чтения кошелька.
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 100000},
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", 30, "a@b")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.createdWithdrawal != nil {
		t.Fatalf("withdrawal must not be created")
	}
}

func TestSubmitWithdrawal_NegativeAmount(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", -500, "a@b")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSubmitWithdrawal_ExceedsBalance(t *testing.T) {
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 200},
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "a@b")
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSubmitWithdrawal_BalanceCheckedBeforeUPI(t *testing.T) {
	// Порядок проверок фиксирован: недостаток баланса побеждает кривой UPI.
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 200},
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "no-at-sign")
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSubmitWithdrawal_InvalidUPI(t *testing.T) {
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 1000},
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "no-at-sign")
	if !errors.Is(err, ErrInvalidUPI) {
		t.Fatalf("expected ErrInvalidUPI, got %v", err)
	}
}

func TestSubmitWithdrawal_WalletNotFound(t *testing.T) {
	repo := &stubRepo{
		walletErr: repository.ErrWalletNotFound,
	}
	svc := NewService(repo, nil)

	_, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "a@b")
	if !errors.Is(err, repository.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestSubmitWithdrawal_FeeAndPayout(t *testing.T) {
	// Контрольный сценарий: 500 при балансе 1000 — комиссия 50, к выплате 450.
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 1000},
	}
	svc := NewService(repo, nil)

	req, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "a@b")
	if err != nil {
		t.Fatalf("SubmitWithdrawal error: %v", err)
	}

	if req.Fee != 50 {
		t.Fatalf("Fee = %v, want 50", req.Fee)
	}
	if req.PayoutAmount != 450 {
		t.Fatalf("PayoutAmount = %v, want 450", req.PayoutAmount)
	}
	if req.Status != model.WithdrawalStatusPending {
		t.Fatalf("Status = %v, want PENDING", req.Status)
	}

	if repo.createdWithdrawal.amountPaise != 50000 {
		t.Fatalf("amountPaise = %d, want 50000", repo.createdWithdrawal.amountPaise)
	}
	if repo.createdWithdrawal.feePaise != 5000 {
		t.Fatalf("feePaise = %d, want 5000", repo.createdWithdrawal.feePaise)
	}
	if repo.createdWithdrawal.payoutPaise != 45000 {
		t.Fatalf("payoutPaise = %d, want 45000", repo.createdWithdrawal.payoutPaise)
	}
}

func TestSubmitWithdrawal_FeeRoundedToPaisa(t *testing.T) {
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 1000},
	}
	svc := NewService(repo, nil)

	// 55.55: комиссия 5.555 округляется вверх до 5.56.
	req, err := svc.SubmitWithdrawal(context.Background(), "u1", 55.55, "a@b")
	if err != nil {
		t.Fatalf("SubmitWithdrawal error: %v", err)
	}

	if req.Fee != 5.56 {
		t.Fatalf("Fee = %v, want 5.56", req.Fee)
	}
	if req.PayoutAmount != 49.99 {
		t.Fatalf("PayoutAmount = %v, want 49.99", req.PayoutAmount)
	}
}

func TestSubmitWithdrawal_ExactBalanceAllowed(t *testing.T) {
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 500},
	}
	svc := NewService(repo, nil)

	if _, err := svc.SubmitWithdrawal(context.Background(), "u1", 500, "a@b"); err != nil {
		t.Fatalf("SubmitWithdrawal error: %v", err)
	}
}

func TestCompleteGig_PassesRatingVerbatim(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	// Диапазон оценки сервисом не проверяется.
	err := svc.CompleteGig(context.Background(), "g1", 999, "great work")
	if err != nil {
		t.Fatalf("CompleteGig error: %v", err)
	}

	if repo.completedGigID != "g1" {
		t.Fatalf("gigID = %q, want g1", repo.completedGigID)
	}
	if repo.completedRating != 999 {
		t.Fatalf("rating = %v, want 999", repo.completedRating)
	}
	if repo.completedReview != "great work" {
		t.Fatalf("review = %q, want %q", repo.completedReview, "great work")
	}
}

func TestCompleteGig_PropagatesAlreadySettled(t *testing.T) {
	repo := &stubRepo{
		completeErr: repository.ErrGigAlreadySettled,
	}
	svc := NewService(repo, nil)

	err := svc.CompleteGig(context.Background(), "g1", 5, "")
	if !errors.Is(err, repository.ErrGigAlreadySettled) {
		t.Fatalf("expected ErrGigAlreadySettled, got %v", err)
	}
}

func TestCompleteGig_PropagatesNotFound(t *testing.T) {
	repo := &stubRepo{
		completeErr: repository.ErrGigNotFound,
	}
	svc := NewService(repo, nil)

	err := svc.CompleteGig(context.Background(), "missing", 5, "")
	if !errors.Is(err, repository.ErrGigNotFound) {
		t.Fatalf("expected ErrGigNotFound, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{
		getUser: &model.User{
			ID:           "u1",
			Login:        "user",
			PasswordHash: hashed,
		},
	}
	svc := NewService(repo, nil)

	_, err = svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_Success(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	repo := &stubRepo{
		getUser: &model.User{
			ID:           "u1",
			Login:        "user",
			PasswordHash: hashed,
		},
	}
	svc := NewService(repo, nil)

	id, err := svc.AuthenticateUser(context.Background(), "user", "correct")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if id != "u1" {
		t.Fatalf("id = %q, want u1", id)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestGetWallet_PassThroughWithoutCache(t *testing.T) {
	repo := &stubRepo{
		wallet: &model.Wallet{UserID: "u1", Balance: 123.45, FrozenAmount: 10},
	}
	svc := NewService(repo, nil)

	w, err := svc.GetWallet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetWallet error: %v", err)
	}
	if w.Balance != 123.45 {
		t.Fatalf("Balance = %v, want 123.45", w.Balance)
	}
}
