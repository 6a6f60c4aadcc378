package orm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/eggmigrate/egg"
	"github.com/BaSui01/eggmigrate/internal/ctxkeys"
	"github.com/BaSui01/eggmigrate/migration"
	"github.com/BaSui01/eggmigrate/types"
)

// DefaultTableName is the bookkeeping table used when none is configured.
const DefaultTableName = "egg_schema_version"

// SchemaVersion is one bookkeeping row: the schema version an egg's tables
// currently reflect.
type SchemaVersion struct {
	ID      uint   `gorm:"primaryKey"`
	EggName string `gorm:"column:egg_name;size:255;not null;uniqueIndex"`
	Version string `gorm:"column:version;size:50;not null"`
}

// =============================================================================
// 🗄️ ORM 控制器
// =============================================================================

// Control keeps schema version bookkeeping in a database through gorm. It
// implements migration.ORMControl.
type Control struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

var _ migration.ORMControl = (*Control)(nil)

// Option configures a Control.
type Option func(*Control)

// WithTableName overrides the bookkeeping table name.
func WithTableName(name string) Option {
	return func(c *Control) {
		if name != "" {
			c.table = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Control) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewControl 创建 ORM 控制器
func NewControl(db *gorm.DB, opts ...Option) (*Control, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	c := &Control{db: db, table: DefaultTableName, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "orm_control"))
	return c, nil
}

// From returns the Control a migration is being scheduled against, so that
// its operations can reach the database through DB(ctx).
func From(s *migration.Scheduler) (*Control, error) {
	c, ok := s.ORM().(*Control)
	if !ok {
		return nil, types.Errorf(types.ErrProgrammerError,
			"migration %s is not scheduled against an orm.Control", s.Version())
	}
	return c, nil
}

// TableName returns the bookkeeping table name.
func (c *Control) TableName() string { return c.table }

type txKey struct{}

// DB returns the transaction carried by ctx, or the base connection bound to
// ctx when there is none.
func (c *Control) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return c.db.WithContext(ctx)
}

// ManagedTransaction runs fn in a transaction that is committed when fn
// returns nil and rolled back otherwise. fn receives a context carrying the
// transaction; calls already inside a managed transaction join it.
func (c *Control) ManagedTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (c *Control) versions(ctx context.Context) *gorm.DB {
	return c.DB(ctx).Table(c.table)
}

// CreateBookkeepingTables creates the bookkeeping table if it is missing.
func (c *Control) CreateBookkeepingTables(ctx context.Context) error {
	if err := c.DB(ctx).Table(c.table).AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("create %s: %w", c.table, err)
	}
	return nil
}

// DropBookkeepingTables removes the bookkeeping table.
func (c *Control) DropBookkeepingTables(ctx context.Context) error {
	return c.DB(ctx).Migrator().DropTable(c.table)
}

// HasBookkeepingTables reports whether the bookkeeping table exists.
func (c *Control) HasBookkeepingTables(ctx context.Context) bool {
	return c.DB(ctx).Migrator().HasTable(c.table)
}

// InitialiseSchemaVersionFor records the first schema version of an egg. It
// fails when the egg already has a record.
func (c *Control) InitialiseSchemaVersionFor(ctx context.Context, eggName, version string) error {
	_, exists, err := c.SchemaVersionFor(ctx, eggName)
	if err != nil {
		return err
	}
	if exists {
		return types.Errorf(types.ErrSchemaVersion, "schema version of %s is already initialised", eggName).WithEgg(eggName)
	}
	row := SchemaVersion{EggName: eggName, Version: version}
	if err := c.versions(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("initialise schema version of %s: %w", eggName, err)
	}
	c.logger.Debug("schema version initialised", zap.String("egg", eggName), zap.String("version", version))
	return nil
}

// RemoveSchemaVersionFor deletes the record of an egg.
func (c *Control) RemoveSchemaVersionFor(ctx context.Context, eggName string) error {
	if err := c.versions(ctx).Where("egg_name = ?", eggName).Delete(&SchemaVersion{}).Error; err != nil {
		return fmt.Errorf("remove schema version of %s: %w", eggName, err)
	}
	return nil
}

// SchemaVersionFor implements migration.ORMControl.
func (c *Control) SchemaVersionFor(ctx context.Context, eggName string) (string, bool, error) {
	var row SchemaVersion
	err := c.versions(ctx).Where("egg_name = ?", eggName).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read schema version of %s: %w", eggName, err)
	}
	return row.Version, true, nil
}

// SetSchemaVersionFor implements migration.ORMControl. It inserts the record
// when the egg has none.
func (c *Control) SetSchemaVersionFor(ctx context.Context, v migration.Version) error {
	row := SchemaVersion{EggName: v.EggName(), Version: v.Number()}
	err := c.versions(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "egg_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"version"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set schema version of %s: %w", v.EggName(), err)
	}
	c.logger.Info("schema version updated", append(runFields(ctx),
		zap.String("egg", v.EggName()), zap.String("version", v.Number()))...)
	return nil
}

// PruneSchemasToOnly implements migration.ORMControl. It keeps the records of
// the eggs of versions and of every egg they reach through dependencies.
func (c *Control) PruneSchemasToOnly(ctx context.Context, versions []migration.Version) error {
	var keep []string
	for _, v := range egg.ReachableVersions(versions) {
		if !slices.Contains(keep, v.EggName()) {
			keep = append(keep, v.EggName())
		}
	}

	q := c.versions(ctx)
	if len(keep) > 0 {
		q = q.Where("egg_name NOT IN ?", keep)
	} else {
		q = q.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	result := q.Delete(&SchemaVersion{})
	if result.Error != nil {
		return fmt.Errorf("prune schema versions: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		c.logger.Info("schema versions pruned", append(runFields(ctx),
			zap.Int64("removed", result.RowsAffected), zap.Strings("kept", keep))...)
	}
	return nil
}

// SchemaVersions lists every record, ordered by egg name.
func (c *Control) SchemaVersions(ctx context.Context) ([]SchemaVersion, error) {
	var rows []SchemaVersion
	if err := c.versions(ctx).Order("egg_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	return rows, nil
}

// runFields 从 context 中取出运行标识，便于把日志与 trace 关联
func runFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if runID, ok := ctxkeys.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", runID))
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	return fields
}
