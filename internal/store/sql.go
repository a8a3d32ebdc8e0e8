package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/common"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// readingRow maps the weather_data table.
type readingRow struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	Date             time.Time `gorm:"type:date;not null;index:idx_weather_data_date;uniqueIndex:ux_weather_data_date_location_period,priority:1"`
	Location         string    `gorm:"type:text;not null;uniqueIndex:ux_weather_data_date_location_period,priority:2"`
	Period           string    `gorm:"type:text;not null;uniqueIndex:ux_weather_data_date_location_period,priority:3"`
	Temperature      float64   `gorm:"type:numeric(4,1)"`
	Humidity         float64   `gorm:"type:numeric(4,1)"`
	WindSpeed        float64   `gorm:"type:numeric(4,1)"`
	WeatherCondition string    `gorm:"type:text"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index:idx_weather_data_user_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (readingRow) TableName() string { return "weather_data" }

func rowFromReading(r weather.Reading) readingRow {
	return readingRow{
		Date:             weather.CivilDate(r.Date),
		Location:         r.Location,
		Period:           string(r.Period),
		Temperature:      r.Temperature,
		Humidity:         r.Humidity,
		WindSpeed:        r.WindSpeed,
		WeatherCondition: r.WeatherCondition,
		UserID:           r.UserID,
	}
}

func (row readingRow) toReading() (weather.Reading, error) {
	p, err := weather.ParsePeriod(row.Period)
	if err != nil {
		return weather.Reading{}, err
	}
	return weather.Reading{
		ID:               row.ID,
		Date:             weather.CivilDate(row.Date),
		Location:         row.Location,
		Period:           p,
		Temperature:      row.Temperature,
		Humidity:         row.Humidity,
		WindSpeed:        row.WindSpeed,
		WeatherCondition: row.WeatherCondition,
		UserID:           row.UserID,
		CreatedAt:        row.CreatedAt,
	}, nil
}

// OpenPostgres connects to the database behind dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// SQLStore implements weather.Store on top of gorm.
type SQLStore struct {
	db      *gorm.DB
	rlsRole string
}

// NewSQLStore creates a SQLStore. When rlsRole is set, every operation runs
// in a transaction that assumes that role with the session's JWT claims, so
// the database's row-level security policies apply.
func NewSQLStore(db *gorm.DB, rlsRole string) *SQLStore {
	return &SQLStore{db: db, rlsRole: rlsRole}
}

// AutoMigrate creates the weather_data table and its indexes.
func (s *SQLStore) AutoMigrate() error {
	return s.db.AutoMigrate(&readingRow{})
}

// Exists reports whether the caller owns a row for key.
func (s *SQLStore) Exists(ctx context.Context, sess auth.Session, key weather.ReadingKey) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}

	var count int64
	err := s.scoped(ctx, sess, func(tx *gorm.DB) error {
		return tx.Model(&readingRow{}).
			Where("date = ? AND location = ? AND period = ? AND user_id = ?",
				weather.CivilDate(key.Date), key.Location, string(key.Period), sess.UserID).
			Limit(1).
			Count(&count).Error
	})
	if err != nil {
		return false, classifySQLError(err)
	}
	return count > 0, nil
}

// InsertIfAbsent inserts r, doing nothing when the (date, location, period)
// unique index already holds a row.
func (s *SQLStore) InsertIfAbsent(ctx context.Context, sess auth.Session, r weather.Reading) (bool, error) {
	if err := checkOwner(sess, r); err != nil {
		return false, err
	}

	row := rowFromReading(r)
	var affected int64
	err := s.scoped(ctx, sess, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "location"}, {Name: "period"}},
			DoNothing: true,
		}).Create(&row)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, classifySQLError(err)
	}
	return affected > 0, nil
}

// List returns the caller's rows for date ordered by period.
func (s *SQLStore) List(ctx context.Context, sess auth.Session, date time.Time) ([]weather.Reading, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}

	var rows []readingRow
	err := s.scoped(ctx, sess, func(tx *gorm.DB) error {
		return tx.Where("date = ? AND user_id = ?", weather.CivilDate(date), sess.UserID).
			Order("id").
			Find(&rows).Error
	})
	if err != nil {
		return nil, classifySQLError(err)
	}

	readings := make([]weather.Reading, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReading()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row.ID, err)
		}
		readings = append(readings, r)
	}
	sortReadings(readings)
	return readings, nil
}

func (s *SQLStore) scoped(ctx context.Context, sess auth.Session, fn func(tx *gorm.DB) error) error {
	db := s.db.WithContext(ctx)
	if s.rlsRole == "" {
		return fn(db)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		claims, err := json.Marshal(map[string]string{
			"sub":   sess.UserID.String(),
			"role":  s.rlsRole,
			"email": sess.Email,
		})
		if err != nil {
			return err
		}
		if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", string(claims)).Error; err != nil {
			return fmt.Errorf("set jwt claims: %w", err)
		}
		if err := tx.Exec("SET LOCAL ROLE " + quoteIdent(s.rlsRole)).Error; err != nil {
			return fmt.Errorf("assume role %s: %w", s.rlsRole, err)
		}
		return fn(tx)
	})
}

func classifySQLError(err error) error {
	if common.ContainsAnyFold(err.Error(), "row-level security", "permission denied") {
		return fmt.Errorf("%w: %w: %v", weather.ErrWrite, ErrPolicyViolation, err)
	}
	return fmt.Errorf("%w: %v", weather.ErrWrite, err)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
