// =============================================================================
// 📦 eggmigrate 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database:  DefaultDatabaseConfig(),
		Migration: DefaultMigrationConfig(),
		Lock:      DefaultLockConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "eggmigrate",
		Password:        "",
		Name:            "eggmigrate",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultMigrationConfig 返回默认迁移配置
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		ManifestPath:     "eggs.yaml",
		BookkeepingTable: "egg_schema_version",
	}
}

// DefaultLockConfig 返回默认运行锁配置
func DefaultLockConfig() LockConfig {
	return LockConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
		Key:     "eggmigrate:lock",
		TTL:     10 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "eggmigrate",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "eggmigrate",
	}
}
