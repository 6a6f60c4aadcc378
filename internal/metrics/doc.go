// 版权所有 2024 eggmigrate Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的迁移指标采集能力。

# 概述

Collector 实现 migration.Observer，注册为 Plan 的观察者后记录规划
次数、Cluster 与 Schedule 数量、各阶段操作的执行次数与耗时。
命令行每次 migrate 运行结束后调用 RecordRun，并可通过 WriteTextfile
输出给 node_exporter 的 textfile collector。

每个 Collector 使用独立的 prometheus.Registry，同一进程中可创建
多个实例。
*/
package metrics
