// Package service реализует бизнес-логику гиг-платформы.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ptanmay/gigworks-system/internal/cache"
	"github.com/ptanmay/gigworks-system/internal/model"
	"github.com/ptanmay/gigworks-system/internal/repository"
	"github.com/ptanmay/gigworks-system/internal/validation"
)

// ErrInvalidAmount возвращается, если сумма вывода не проходит проверку минимума.
var (
	ErrInvalidAmount = errors.New("withdrawal amount must be at least 50")
	// ErrInvalidUPI возвращается при некорректном UPI-адресе.
	ErrInvalidUPI = errors.New("invalid UPI format")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, id, login string, passwordHash []byte) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	CreateWithdrawalRequest(ctx context.Context, id, userID string, amountPaise, feePaise, payoutPaise int64, upi string) (*model.WithdrawalRequest, error)
	GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.WithdrawalRequest, error)
	GetGig(ctx context.Context, gigID string) (*model.Gig, error)
	CompleteGig(ctx context.Context, gigID string, rating float64, review string) (*string, error)
}

// Service содержит бизнес-логику гиг-платформы.
type Service struct {
	repo        Repository
	walletCache *cache.WalletCache
}

// NewService создаёт новый сервис с указанным репозиторием и кэшем кошельков.
// Кэш опционален: nil отключает кэширование.
func NewService(repo Repository, walletCache *cache.WalletCache) *Service {
	return &Service{
		repo:        repo,
		walletCache: walletCache,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя и создаёт ему кошелёк.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	if err := s.repo.CreateUser(ctx, id, login, hashed); err != nil {
		return "", err
	}

	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (string, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return u.ID, nil
}

// GetWallet возвращает кошелёк пользователя, при возможности — из кэша.
func (s *Service) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if w, ok := s.walletCache.Get(ctx, userID); ok {
		return w, nil
	}

	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = s.walletCache.Set(ctx, w)

	return w, nil
}

// SubmitWithdrawal создаёт заявку на вывод средств на UPI-адрес.
// Проверки выполняются строго по порядку, первая нарушенная побеждает:
// минимальная сумма, достаточность баланса, форма UPI-адреса.
// Баланс кошелька заявкой не списывается; комиссия и сумма к выплате
// возвращаются вызывающему для показа до подтверждения.
func (s *Service) SubmitWithdrawal(ctx context.Context, userID string, amount float64, upi string) (*model.WithdrawalRequest, error) {
	if !validation.IsValidWithdrawalAmount(amount) {
		return nil, ErrInvalidAmount
	}

	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amount > w.Balance {
		return nil, repository.ErrInsufficientBalance
	}

	if !validation.IsValidVPA(upi) {
		return nil, ErrInvalidUPI
	}

	amountPaise := int64(math.Round(amount * 100))
	feePaise := (amountPaise + 5) / 10 // 10% с округлением до пайсы
	payoutPaise := amountPaise - feePaise

	req, err := s.repo.CreateWithdrawalRequest(ctx, uuid.NewString(), userID, amountPaise, feePaise, payoutPaise, upi)
	if err != nil {
		return nil, err
	}

	return req, nil
}

// GetWithdrawalsByUser возвращает историю заявок пользователя на вывод средств.
func (s *Service) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.WithdrawalRequest, error) {
	return s.repo.GetWithdrawalsByUser(ctx, userID)
}

// GetGig возвращает гиг по идентификатору.
func (s *Service) GetGig(ctx context.Context, gigID string) (*model.Gig, error) {
	return s.repo.GetGig(ctx, gigID)
}

// CompleteGig закрывает гиг с оценкой и отзывом. Если гигу назначен
// исполнитель, его рейтинг и заработок обновляются в той же транзакции,
// а кэш его кошелька сбрасывается.
func (s *Service) CompleteGig(ctx context.Context, gigID string, rating float64, review string) error {
	workerID, err := s.repo.CompleteGig(ctx, gigID, rating, review)
	if err != nil {
		return err
	}

	if workerID != nil {
		_ = s.walletCache.Invalidate(ctx, *workerID)
	}

	return nil
}
