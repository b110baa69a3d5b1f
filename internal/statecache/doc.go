// Copyright (c) ScoreFlow Authors.
// Licensed under the MIT License.

/*
包 statecache 将引擎内存中的工作流状态快照镜像到 Redis，
供其他进程查询运行中或已结束的工作流。

# 概述

Mirror 通过 Attach 订阅引擎的状态回调，在每次状态变化时写入最新快照。
镜像是只写的旁路存储：引擎从不读取它，写入失败只记录日志。

# 键布局

  - <prefix>workflow:<id>：JSON 快照，过期时间取 redis.ttl。
  - <prefix>status:<status>：该状态下的工作流 ID 集合，
    ListByStatus 读取时会清理已过期快照的 ID。
*/
package statecache
