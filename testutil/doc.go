/*
Package testutil 提供 eggmigrate 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试与系统测试提供统一的辅助能力，
避免重复实现相似的测试基础设施。它只依赖 gorm 与 testify，
因此 orm 等内部包的测试也可以直接引用。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 数据库辅助: OpenSQLite 打开纯 Go SQLite 连接，内存库固定单连接
  - 文件辅助: WriteFile 写入清单与配置
  - 异步断言: AssertEventuallyTrue / WaitFor

# 子包

  - testutil/fixtures: Recorder 记录迁移执行顺序，NotesManifest
    等预置清单，供驱动完整迁移流程的测试使用

# 使用示例

	ctx := testutil.TestContext(t)
	rec := &fixtures.Recorder{}
	catalog := rec.Catalog(migration.PhaseData, "Touch")
*/
package testutil
