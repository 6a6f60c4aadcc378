package bookkeeping

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/eggmigrate/config"
)

// NewMigratorFromConfig creates a migrator for the configured database and
// bookkeeping table.
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	m, err := NewConfig(cfg.Database, cfg.Migration.BookkeepingTable)
	if err != nil {
		return nil, err
	}
	m.Logger = logger
	return NewMigrator(m)
}

// NewConfig translates database configuration into migrator configuration.
func NewConfig(dbCfg config.DatabaseConfig, table string) (*Config, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	case DatabaseTypeSQLite:
		// sqlite 的 Name 字段即文件路径
		dbURL = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	}

	return &Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    table,
	}, nil
}
