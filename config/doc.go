// Package config 提供 eggmigrate 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → EGGMIGRATE_ 前缀环境变量 的顺序加载，
// 最后运行验证器。
package config
