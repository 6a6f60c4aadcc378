// =============================================================================
// eggmigrate 主入口
// =============================================================================
// 使用方法:
//
//	eggmigrate initdb --config eggmigrate.yaml  # 记录已安装版本
//	eggmigrate migrate --explain-plan           # 仅输出迁移计划
//	eggmigrate migrate                          # 执行迁移
//	eggmigrate status                           # 查看各 egg 版本
//	eggmigrate bookkeeping up                   # 创建簿记表
//
// 该二进制不注册任何迁移，只能处理没有迁移类的清单以及簿记表本身。
// 项目应像 examples/01_addressbook 那样用自己的 egg.Catalog 构建命令。
// =============================================================================
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/eggmigrate"
	"github.com/BaSui01/eggmigrate/egg"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := eggmigrate.NewApp(egg.NewCatalog()).WithBuildInfo(eggmigrate.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
