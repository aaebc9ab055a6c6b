package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/metrics"
)

// APIKey is the gorm model backing the store-mode api_keys table.
type APIKey struct {
	ID         uint   `gorm:"primaryKey"`
	GameID     string `gorm:"column:game_id;index"`
	Key        string `gorm:"column:key;uniqueIndex"`
	IsActive   bool   `gorm:"column:is_active;default:true"`
	CreatedAt  time.Time
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
}

func (APIKey) TableName() string { return "api_keys" }

// StoreVerifier looks up API keys in Postgres, wrapped in a circuit breaker
// so a degraded database fails closed (INVALID_API_KEY) without blocking a
// connection's read pump (see §5: no blocking I/O inside a room's critical
// section — this lookup always runs before any room lock is taken).
type StoreVerifier struct {
	db *gorm.DB
	cb *gobreaker.CircuitBreaker
}

// NewStoreVerifier opens a connection pool against dsn and auto-migrates the
// api_keys table.
func NewStoreVerifier(dsn string) (*StoreVerifier, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&APIKey{}); err != nil {
		return nil, err
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "authstore",
		MaxRequests: 3,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.AuthStoreCircuitState.Set(float64(to))
			logging.Warn(context.Background(), "authstore circuit breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &StoreVerifier{db: db, cb: cb}, nil
}

// VerifyAPIKey looks up an active key record. A circuit-open or query
// failure degrades to (false, nil) per §7 — auth-store failures never leak
// internal errors to the caller.
func (v *StoreVerifier) VerifyAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	result, err := v.cb.Execute(func() (any, error) {
		var record APIKey
		err := v.db.WithContext(ctx).
			Where("key = ? AND is_active = ?", key, true).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &record, nil
	})

	if err != nil {
		metrics.AuthStoreFailures.WithLabelValues("circuit_or_query").Inc()
		logging.Error(ctx, "authstore lookup failed, degrading to invalid key", zap.Error(err))
		return false, nil
	}

	record, ok := result.(*APIKey)
	if !ok || record == nil {
		return false, nil
	}

	go v.touchLastUsed(record.ID)

	return true, nil
}

// touchLastUsed is best-effort per §4.2: failures here are swallowed and
// never affect the verification result that already returned to the caller.
func (v *StoreVerifier) touchLastUsed(id uint) {
	now := time.Now()
	if err := v.db.Model(&APIKey{}).Where("id = ?", id).Update("last_used_at", now).Error; err != nil {
		logging.Warn(context.Background(), "failed to update api_key.last_used_at", zap.Uint("id", id), zap.Error(err))
	}
}

// Ping reports whether the underlying database connection is reachable, for
// the readiness probe.
func (v *StoreVerifier) Ping(ctx context.Context) error {
	sqlDB, err := v.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
