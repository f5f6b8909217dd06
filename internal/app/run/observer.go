package run

import (
	"time"

	"github.com/John-Robertt/berealx/internal/config"
	"github.com/John-Robertt/berealx/internal/domain"
)

// Observer 把 “运行进度/阶段/条目结果” 从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件在调用 Execute 的 goroutine 上按顺序发出；实现若另有 ticker 等并发读者，需要自行加锁。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（load / prepare / memories / reactions）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在每条输入记录得到终态时调用；total 为所有集合的输入总数。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
