// 版权所有 2024 eggmigrate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供 egg 数据库 Schema 迁移的规划器与调度器。

# 概述

Plan 从根 egg 的已安装版本出发，遍历版本历史与依赖，找出尚未迁移的
版本；随后将相互依赖的版本聚合为 Cluster，按依赖顺序（最小者优先）
为每个 Cluster 构建嵌套的 Schedule。每个 Schedule 按阶段
（drop_pk、pre_alter、alter、create_pk、indexes、data、create_fk、
cleanup）保存延迟执行的操作，drop_fk 操作则被路由到嵌套之前或某个
嵌套 Schedule 完成之后执行。

# 核心接口与类型

  - Version / Dependency：egg 元数据契约，由 egg 包实现。
  - ORMControl：Schema 版本簿记契约，由 orm 包实现。
  - Migration / Factory / Base：领域迁移逻辑，在 ScheduleUpgrades 中
    通过 Scheduler.Schedule 登记操作。
  - Plan：DoPlanning / Execute / Explain。
  - Schedule / Cluster / Entry：规划结果，可供检查与解释。
  - ExecutionError：执行失败时携带登记操作时的调用点（SchedulingContext）。

# 使用示例

	plan := migration.NewPlan(root, ormControl, migration.WithLogger(logger))
	if err := plan.DoPlanning(ctx); err != nil {
		return err
	}
	return plan.Execute(ctx)
*/
package migration
