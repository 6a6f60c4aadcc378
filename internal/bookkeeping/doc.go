/*
包 bookkeeping 用版本化 SQL 管理 egg 的 schema 版本记录表，支持
PostgreSQL、MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

各方言的建表 SQL 通过 embed.FS 内嵌，读取时把 {{table}} 占位符替换为
配置中的记录表名。golang-migrate 自己的版本表与记录表分开存放，默认
名为 eggmigrate_bookkeeping_migrations。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Force/Version/
    Status/Info/Close。
  - Config：数据库类型、连接 URL、记录表名、锁超时与日志。
  - CLI：eggmigrate bookkeeping 子命令的格式化输出。
  - NewMigratorFromConfig / NewConfig：从 config.Config 构造迁移器。
*/
package bookkeeping
