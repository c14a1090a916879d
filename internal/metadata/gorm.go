package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// entityModel is the GORM persistence model for entity records.
type entityModel struct {
	ID         uint32 `gorm:"primaryKey;autoIncrement:false"`
	Name       string `gorm:"index"`
	Category   string
	Online     bool
	Compact    bool
	LastLat    float64
	LastLon    float64
	LastSeen   time.Time
	Attributes datatypes.JSON
	UpdatedAt  time.Time
}

func (entityModel) TableName() string { return "entities" }

// GormSource is a database-backed metadata source (SQLite by default,
// Postgres for shared deployments).
type GormSource struct {
	db *gorm.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed source.
func NewSQLite(path string) (*GormSource, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite metadata store: %w", err)
	}
	return newGormSource(db)
}

// NewPostgres connects to a Postgres-backed source.
func NewPostgres(host, port, user, password, database string) (*GormSource, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, database,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres metadata store: %w", err)
	}
	return newGormSource(db)
}

func newGormSource(db *gorm.DB) (*GormSource, error) {
	if err := db.AutoMigrate(&entityModel{}); err != nil {
		return nil, fmt.Errorf("migrating entities table: %w", err)
	}
	return &GormSource{db: db}, nil
}

// List returns all known entity records.
func (g *GormSource) List(ctx context.Context) ([]core.EntityRecord, error) {
	var models []entityModel
	if err := g.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	out := make([]core.EntityRecord, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

// Upsert creates or replaces an entity record.
func (g *GormSource) Upsert(ctx context.Context, rec core.EntityRecord) error {
	m, err := modelFromRecord(rec)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("upserting entity %d: %w", rec.ID, err)
	}
	return nil
}

// UpdateLastPosition persists the last displayed position for an
// entity. Unknown entities are ignored.
func (g *GormSource) UpdateLastPosition(ctx context.Context, id core.EntityID, lat, lon float64, seen time.Time) error {
	err := g.db.WithContext(ctx).
		Model(&entityModel{}).
		Where("id = ?", uint32(id)).
		Updates(map[string]any{
			"last_lat":  lat,
			"last_lon":  lon,
			"last_seen": seen,
		}).Error
	if err != nil {
		return fmt.Errorf("updating last position of entity %d: %w", id, err)
	}
	return nil
}

// Remove deletes an entity record.
func (g *GormSource) Remove(ctx context.Context, id core.EntityID) error {
	err := g.db.WithContext(ctx).Delete(&entityModel{}, uint32(id)).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("removing entity %d: %w", id, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (g *GormSource) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m entityModel) toRecord() core.EntityRecord {
	rec := core.EntityRecord{
		ID:       core.EntityID(m.ID),
		Name:     m.Name,
		Category: m.Category,
		Online:   m.Online,
		Compact:  m.Compact,
		LastLat:  m.LastLat,
		LastLon:  m.LastLon,
		LastSeen: m.LastSeen,
	}
	if len(m.Attributes) > 0 {
		attrs := make(map[string]string)
		if err := json.Unmarshal(m.Attributes, &attrs); err == nil {
			rec.Attributes = attrs
		}
	}
	return rec
}

func modelFromRecord(rec core.EntityRecord) (entityModel, error) {
	m := entityModel{
		ID:       uint32(rec.ID),
		Name:     rec.Name,
		Category: rec.Category,
		Online:   rec.Online,
		Compact:  rec.Compact,
		LastLat:  rec.LastLat,
		LastLon:  rec.LastLon,
		LastSeen: rec.LastSeen,
	}
	if rec.Attributes != nil {
		raw, err := json.Marshal(rec.Attributes)
		if err != nil {
			return m, fmt.Errorf("encoding attributes of entity %d: %w", rec.ID, err)
		}
		m.Attributes = datatypes.JSON(raw)
	}
	return m, nil
}
