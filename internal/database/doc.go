// 版权所有 2024 eggmigrate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责按配置打开 GORM 数据库并管理连接池。

# 概述

Open 根据 config.DatabaseConfig 选择方言（postgres、mysql，或纯 Go
实现的 github.com/glebarez/sqlite），打开连接后交给 PoolManager
统一设置连接数与生命周期。GORM 日志桥接到 zap，仅在 debug 级别
输出 SQL。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，可由 PoolConfigFrom 从数据库配置构建。
  - PoolStats：友好格式的连接池统计信息。

# 重试

WithRetry 在死锁、序列化失败、连接中断等可重试错误时以指数退避
重新执行整个回调，适合包裹"规划 + 执行"整体处于一个事务中的迁移。
*/
package database
