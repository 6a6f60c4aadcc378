/*
包 system 把 egg 清单、数据库连接、簿记表与可观测性组件组装成
SystemControl，提供 eggmigrate 命令行的系统级操作。

  - MigrateDB：规划并在单个受管事务中执行迁移，或仅输出计划。
  - CreateDBTables：创建簿记表并把每个 egg 记录为已安装版本。
  - Status / DiffDB：对比已安装版本与数据库中记录的版本。

Connect 从 config.Config 构建全部依赖；New 用于已打开的连接池。
*/
package system
