// Copyright (c) eggmigrate Authors.
// Licensed under the MIT License.

/*
Package types 提供 eggmigrate 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 graph、migration、egg、
orm 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 Egg 标记与 Cause 链
  - GetErrorCode / IsErrorCode — 沿 errors.As 链提取错误码
*/
package types
