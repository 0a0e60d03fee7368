// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ptanmay/gigworks-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrWalletNotFound возвращается, если у пользователя нет кошелька.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrGigNotFound возвращается, если гиг с указанным идентификатором не найден.
	ErrGigNotFound = errors.New("gig not found")
	// ErrGigAlreadySettled возвращается при повторной попытке закрыть уже завершённый или отменённый гиг.
	ErrGigAlreadySettled = errors.New("gig already settled")
	// ErrInsufficientBalance возвращается при попытке вывода суммы, превышающей баланс кошелька.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks: обе
		// транзакции закрытия гига трогают по две строки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Суммы хранятся в пайсах (1 рупия = 100 пайс), наружу отдаются рупии.
func toRupees(p int64) float64 {
	return float64(p) / 100
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя вместе с пустым кошельком.
func (r *PostgresRepository) CreateUser(ctx context.Context, id, login string, passwordHash []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, login, password_hash) VALUES ($1, $2, $3)`,
		id, login, passwordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return fmt.Errorf("create user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, frozen_amount) VALUES ($1, 0, 0)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, rating, rating_count, total_earned, created_at
		 FROM users WHERE login = $1`,
		login,
	)

	var (
		u           model.User
		totalEarned int64
	)
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Rating, &u.RatingCount, &totalEarned, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.TotalEarned = toRupees(totalEarned)

	return &u, nil
}

// GetWallet возвращает кошелёк пользователя.
func (r *PostgresRepository) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, frozen_amount FROM wallets WHERE user_id = $1`,
		userID,
	)

	var (
		w       model.Wallet
		balance int64
		frozen  int64
	)
	if err := row.Scan(&w.UserID, &balance, &frozen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	w.Balance = toRupees(balance)
	w.FrozenAmount = toRupees(frozen)

	return &w, nil
}

// CreateWithdrawalRequest создаёт заявку на вывод средств. Баланс кошелька не
// списывается: фактическое списание выполняет внешний процесс обработки заявок.
// Строка кошелька блокируется и баланс перепроверяется внутри транзакции,
// чтобы параллельные заявки не превысили доступный остаток.
func (r *PostgresRepository) CreateWithdrawalRequest(ctx context.Context, id, userID string, amountPaise, feePaise, payoutPaise int64, upi string) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var balance int64
		err = tx.QueryRow(ctx,
			`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("lock wallet: %w", err)
		}

		if amountPaise > balance {
			return ErrInsufficientBalance
		}

		var createdAt time.Time
		err = tx.QueryRow(ctx,
			`INSERT INTO withdrawal_requests (id, user_id, amount, fee, payout_amount, upi, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING created_at`,
			id, userID, amountPaise, feePaise, payoutPaise, upi, string(model.WithdrawalStatusPending),
		).Scan(&createdAt)
		if err != nil {
			return fmt.Errorf("insert withdrawal request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		req = &model.WithdrawalRequest{
			ID:           id,
			UserID:       userID,
			Amount:       toRupees(amountPaise),
			Fee:          toRupees(feePaise),
			PayoutAmount: toRupees(payoutPaise),
			UPI:          upi,
			Status:       model.WithdrawalStatusPending,
			CreatedAt:    createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// GetWithdrawalsByUser возвращает историю заявок пользователя на вывод средств.
func (r *PostgresRepository) GetWithdrawalsByUser(ctx context.Context, userID string) ([]model.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, amount, fee, payout_amount, upi, status, created_at
		 FROM withdrawal_requests
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawal requests: %w", err)
	}
	defer rows.Close()

	var res []model.WithdrawalRequest
	for rows.Next() {
		var (
			req         model.WithdrawalRequest
			amountPaise int64
			feePaise    int64
			payoutPaise int64
			status      string
		)

		if err := rows.Scan(&req.ID, &amountPaise, &feePaise, &payoutPaise, &req.UPI, &status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal request: %w", err)
		}

		req.UserID = userID
		req.Amount = toRupees(amountPaise)
		req.Fee = toRupees(feePaise)
		req.PayoutAmount = toRupees(payoutPaise)
		req.Status = model.WithdrawalStatus(status)

		res = append(res, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetGig возвращает гиг по идентификатору.
func (r *PostgresRepository) GetGig(ctx context.Context, gigID string) (*model.Gig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, assigned_worker_id, price, status, rating, review, created_at, completed_at
		 FROM gigs WHERE id = $1`,
		gigID,
	)

	var (
		g      model.Gig
		price  int64
		status string
	)
	err := row.Scan(&g.ID, &g.Title, &g.AssignedWorkerID, &price, &status, &g.Rating, &g.Review, &g.CreatedAt, &g.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGigNotFound
		}
		return nil, fmt.Errorf("get gig: %w", err)
	}
	g.Price = toRupees(price)
	g.Status = model.GigStatus(status)

	return &g, nil
}

// CompleteGig закрывает гиг и обновляет агрегаты назначенного исполнителя в
// одной транзакции. Переход в COMPLETED условный: гиг в терминальном статусе
// закрыть повторно нельзя, поэтому двойное начисление исполнителю исключено.
// Возвращает идентификатор исполнителя, если он был назначен.
func (r *PostgresRepository) CompleteGig(ctx context.Context, gigID string, rating float64, review string) (*string, error) {
	var workerID *string

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			assignedWorkerID *string
			pricePaise       int64
			status           string
		)
		err = tx.QueryRow(ctx,
			`SELECT assigned_worker_id, price, status FROM gigs WHERE id = $1 FOR UPDATE`,
			gigID,
		).Scan(&assignedWorkerID, &pricePaise, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrGigNotFound
			}
			return fmt.Errorf("lock gig: %w", err)
		}

		// Оценка сохраняется как есть: диапазон не проверяется.
		cmdTag, err := tx.Exec(ctx,
			`UPDATE gigs
			 SET status = $2, rating = $3, review = $4, completed_at = now()
			 WHERE id = $1 AND status NOT IN ($5, $6)`,
			gigID, string(model.GigStatusCompleted), rating, review,
			string(model.GigStatusCompleted), string(model.GigStatusCancelled),
		)
		if err != nil {
			return fmt.Errorf("update gig: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			return ErrGigAlreadySettled
		}

		if assignedWorkerID != nil {
			if err := settleWorker(ctx, tx, *assignedWorkerID, rating, pricePaise); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		workerID = assignedWorkerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return workerID, nil
}

// settleWorker пересчитывает рейтинг исполнителя и зачисляет стоимость гига
// в его заработок и кошелёк. Вызывается внутри транзакции закрытия гига.
func settleWorker(ctx context.Context, tx pgx.Tx, workerID string, rating float64, pricePaise int64) error {
	var (
		oldRating   *float64
		ratingCount int64
		totalEarned int64
	)
	err := tx.QueryRow(ctx,
		`SELECT rating, rating_count, total_earned FROM users WHERE id = $1 FOR UPDATE`,
		workerID,
	).Scan(&oldRating, &ratingCount, &totalEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, workerID)
		}
		return fmt.Errorf("lock worker: %w", err)
	}

	newRating, newCount := model.FoldRating(oldRating, ratingCount, rating)

	_, err = tx.Exec(ctx,
		`UPDATE users SET rating = $2, rating_count = $3, total_earned = $4 WHERE id = $1`,
		workerID, newRating, newCount, totalEarned+pricePaise,
	)
	if err != nil {
		return fmt.Errorf("update worker stats: %w", err)
	}

	// У исполнителей, зарегистрированных до введения кошельков, строки может
	// не быть — создаём её вместе с первым начислением.
	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, frozen_amount) VALUES ($1, $2, 0)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`,
		workerID, pricePaise,
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	return nil
}
