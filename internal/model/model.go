// Package model содержит доменные сущности гиг-платформы.
package model

import "time"

// User представляет зарегистрированного пользователя платформы.
// Рейтинг хранится как указатель: у нового исполнителя рейтинга ещё нет.
type User struct {
	ID           string
	Login        string
	PasswordHash []byte
	Rating       *float64
	RatingCount  int64
	TotalEarned  float64
	CreatedAt    time.Time
}

// Wallet описывает кошелёк пользователя. Суммы в рупиях.
type Wallet struct {
	UserID       string  `json:"user_id"`
	Balance      float64 `json:"balance"`
	FrozenAmount float64 `json:"frozen_amount"`
}

// GigStatus описывает статус гига.
type GigStatus string

const (
	GigStatusPending    GigStatus = "PENDING"
	GigStatusInProgress GigStatus = "IN_PROGRESS"
	GigStatusCompleted  GigStatus = "COMPLETED"
	GigStatusCancelled  GigStatus = "CANCELLED"
)

// Gig описывает задание и его текущее состояние.
// Оценка и отзыв появляются только после завершения.
type Gig struct {
	ID               string
	Title            string
	AssignedWorkerID *string
	Price            float64
	Status           GigStatus
	Rating           *float64
	Review           *string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected WithdrawalStatus = "REJECTED"
	WithdrawalStatusPaid     WithdrawalStatus = "PAID"
)

// WithdrawalRequest описывает заявку на вывод средств на UPI-адрес.
// Комиссия и сумма к выплате фиксируются в момент создания заявки.
type WithdrawalRequest struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Amount       float64          `json:"amount"`
	Fee          float64          `json:"fee"`
	PayoutAmount float64          `json:"payout_amount"`
	UPI          string           `json:"upi"`
	Status       WithdrawalStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// DefaultWorkerRating — рейтинг исполнителя без единой оценки. Новый
// исполнитель начинает с идеального рейтинга, а не с нуля.
const DefaultWorkerRating = 5.0

// FoldRating добавляет новую оценку к накопленному среднему.
// Каждая историческая оценка имеет одинаковый вес: среднее пересчитывается
// из сохранённых счётчика и значения, без сырой истории оценок.
func FoldRating(oldRating *float64, oldCount int64, incoming float64) (float64, int64) {
	prev := DefaultWorkerRating
	if oldRating != nil {
		prev = *oldRating
	}
	newCount := oldCount + 1
	newRating := (prev*float64(oldCount) + incoming) / float64(newCount)
	return newRating, newCount
}
