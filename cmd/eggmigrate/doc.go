/*
Package main 提供 eggmigrate 命令行程序入口。

# 概述

cmd/eggmigrate 是 eggmigrate.App 的薄封装：注入构建信息，监听
SIGINT/SIGTERM 以取消正在进行的迁移，并把退出码交给操作系统。

# 子命令

  - migrate [--explain-plan]：规划并执行（或仅输出）迁移
  - status / diffdb：对比已安装版本与数据库记录
  - initdb：创建簿记表并记录已安装版本
  - bookkeeping up|down|status|version：管理簿记表结构
  - version / help
*/
package main
