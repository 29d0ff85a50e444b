package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tokenRow is the refresh_tokens table. Instants are unix milliseconds so
// comparisons behave the same on SQLite and Postgres.
type tokenRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	TokenHash string `gorm:"size:64;uniqueIndex;not null"`
	UserID    string `gorm:"size:128;index;not null"`
	TenantID  string `gorm:"size:128;not null"`
	CreatedAt int64  `gorm:"autoCreateTime:milli;not null"`
	ExpiresAt int64  `gorm:"not null"`
	Revoked   bool   `gorm:"not null"`
}

func (tokenRow) TableName() string { return "refresh_tokens" }

func (r *tokenRow) record() *Record {
	return &Record{
		ID:        r.ID,
		TokenHash: r.TokenHash,
		UserID:    r.UserID,
		TenantID:  r.TenantID,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		ExpiresAt: time.UnixMilli(r.ExpiresAt),
		Revoked:   r.Revoked,
	}
}

var errRotateCollision = errors.New("rotate collision")

// GormStore keeps refresh tokens in a SQL database through gorm.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenGorm opens a gorm connection for driver "sqlite" or "postgres" with
// error translation enabled, which GormStore relies on to detect collisions.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	const op = "refresh.OpenGorm"

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", op, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// An in-memory database exists per connection.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewGormStore returns a store over db. Call Migrate before first use.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	o := buildOptions(opts)
	return &GormStore{db: db, now: o.now}
}

// Migrate creates or updates the refresh_tokens table.
func (s *GormStore) Migrate(ctx context.Context) error {
	const op = "refresh.GormStore.Migrate"

	if err := s.db.WithContext(ctx).AutoMigrate(&tokenRow{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, owner Owner, ttl time.Duration) (string, error) {
	const op = "refresh.GormStore.Create"

	if err := validateTTL(ttl); err != nil {
		return "", err
	}
	if owner.UserID == "" {
		return "", errors.New("refresh owner user id is required")
	}

	now := s.now()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := NewValue()
		if err != nil {
			return "", err
		}
		row := tokenRow{
			ID:        uuid.NewString(),
			TokenHash: HashValue(value),
			UserID:    owner.UserID,
			TenantID:  owner.TenantID,
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(ttl).UnixMilli(),
		}
		err = s.db.WithContext(ctx).Create(&row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		return value, nil
	}
	return "", ErrCollision
}

// FindValid implements Store.
func (s *GormStore) FindValid(ctx context.Context, value string) (*Record, error) {
	const op = "refresh.GormStore.FindValid"

	if value == "" {
		return nil, ErrNotFound
	}

	var row tokenRow
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND revoked = ? AND expires_at > ?", HashValue(value), false, s.now().UnixMilli()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return row.record(), nil
}

// Revoke implements Store.
func (s *GormStore) Revoke(ctx context.Context, value, userID string) (bool, error) {
	const op = "refresh.GormStore.Revoke"

	if value == "" || userID == "" {
		return false, nil
	}

	res := s.db.WithContext(ctx).Model(&tokenRow{}).
		Where("token_hash = ? AND user_id = ? AND revoked = ? AND expires_at > ?",
			HashValue(value), userID, false, s.now().UnixMilli()).
		Update("revoked", true)
	if res.Error != nil {
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RevokeAll implements Store.
func (s *GormStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	const op = "refresh.GormStore.RevokeAll"

	if userID == "" {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Model(&tokenRow{}).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, s.now().UnixMilli()).
		Update("revoked", true)
	if res.Error != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, res.Error)
	}
	return int(res.RowsAffected), nil
}

// Rotate implements Store. The conditional UPDATE is the compare-and-swap:
// of several transactions racing on one row only the first sees a row
// affected, the rest return ErrNotFound.
func (s *GormStore) Rotate(ctx context.Context, value string, ttl time.Duration) (string, *Record, error) {
	const op = "refresh.GormStore.Rotate"

	if err := validateTTL(ttl); err != nil {
		return "", nil, err
	}
	if value == "" {
		return "", nil, ErrNotFound
	}
	oldHash := HashValue(value)

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		next, err := NewValue()
		if err != nil {
			return "", nil, err
		}
		now := s.now()
		nowMs := now.UnixMilli()

		var created tokenRow
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var old tokenRow
			err := tx.Where("token_hash = ?", oldHash).Take(&old).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if old.Revoked || old.ExpiresAt <= nowMs {
				return ErrNotFound
			}

			res := tx.Model(&tokenRow{}).
				Where("id = ? AND revoked = ? AND expires_at > ?", old.ID, false, nowMs).
				Update("revoked", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrNotFound
			}

			created = tokenRow{
				ID:        uuid.NewString(),
				TokenHash: HashValue(next),
				UserID:    old.UserID,
				TenantID:  old.TenantID,
				CreatedAt: nowMs,
				ExpiresAt: now.Add(ttl).UnixMilli(),
			}
			if err := tx.Create(&created).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errRotateCollision
				}
				return err
			}
			return nil
		})

		switch {
		case err == nil:
			return next, created.record(), nil
		case errors.Is(err, errRotateCollision):
			continue
		case errors.Is(err, ErrNotFound):
			return "", nil, ErrNotFound
		default:
			return "", nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
	}
	return "", nil, ErrCollision
}

// Ping checks database availability.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
