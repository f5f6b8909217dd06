package export

import (
	"sort"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/window"
)

// Selected 是通过过滤、待导出的记录（TakenAt 已解析为 UTC）。
type Selected struct {
	Record  domain.Record
	TakenAt time.Time
}

// Rejected 是被过滤掉的记录及原因（domain.ErrCode*）。
type Rejected struct {
	Record  domain.Record
	TakenAt time.Time // 时间戳无法解析时为零值
	Code    string
}

// Select 过滤并排序记录。
//
// - 时间戳无法解析：bad_timestamp
// - 不在窗口内（两端闭区间）：out_of_window
// - reaction 不满足 instant 策略：instant_policy
// - kept 按拍摄时刻升序；同一时刻按输入顺序（稳定）
// - rejected 保持输入顺序
func Select(records []domain.Record, w window.Window, policy domain.InstantPolicy) (kept []Selected, rejected []Rejected) {
	kept = make([]Selected, 0, len(records))
	for _, r := range records {
		t, ok := domain.ParseTakenAt(r.TakenAtRaw)
		switch {
		case !ok:
			rejected = append(rejected, Rejected{Record: r, Code: domain.ErrCodeBadTimestamp})
		case !w.Contains(t):
			rejected = append(rejected, Rejected{Record: r, TakenAt: t, Code: domain.ErrCodeOutOfWindow})
		case !policy.Keep(r):
			rejected = append(rejected, Rejected{Record: r, TakenAt: t, Code: domain.ErrCodeInstantPolicy})
		default:
			kept = append(kept, Selected{Record: r, TakenAt: t})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].TakenAt.Equal(kept[j].TakenAt) {
			return kept[i].TakenAt.Before(kept[j].TakenAt)
		}
		return kept[i].Record.Index < kept[j].Record.Index
	})
	return kept, rejected
}
