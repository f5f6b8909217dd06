package export

import (
	"testing"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/window"
	"github.com/m-mizutani/gt"
)

func rec(idx int, raw string) domain.Record {
	return domain.Record{Kind: domain.KindMemory, Index: idx, TakenAtRaw: raw}
}

func TestSelect_SortsAscendingStable(t *testing.T) {
	// 输入 [T3, T1, T2]，以及与 T1 同一时刻的第 4 条。
	records := []domain.Record{
		rec(0, "2024-03-03T00:00:00Z"),
		rec(1, "2024-01-01T00:00:00Z"),
		rec(2, "2024-02-02T00:00:00Z"),
		rec(3, "2024-01-01T00:00:00.000Z"),
	}
	kept, rejected := Select(records, window.ForYear(2024), domain.InstantAll)

	gt.A(t, rejected).Length(0)
	gt.A(t, kept).Length(4)
	got := []int{kept[0].Record.Index, kept[1].Record.Index, kept[2].Record.Index, kept[3].Record.Index}
	gt.Equal(t, got, []int{1, 3, 2, 0})
}

func TestSelect_WindowInclusiveAndBadTimestamp(t *testing.T) {
	w := window.ForYear(2023)
	records := []domain.Record{
		rec(0, "2023-01-01T00:00:00Z"), // 起点
		rec(1, "2023-12-31T23:59:59Z"), // 终点
		rec(2, "2024-01-01T00:00:00Z"), // 窗口外
		rec(3, "not a time"),
		rec(4, ""),
	}
	kept, rejected := Select(records, w, domain.InstantAll)

	gt.A(t, kept).Length(2)
	gt.A(t, rejected).Length(3)
	gt.Equal(t, rejected[0].Code, domain.ErrCodeOutOfWindow)
	gt.Equal(t, rejected[1].Code, domain.ErrCodeBadTimestamp)
	gt.Equal(t, rejected[2].Code, domain.ErrCodeBadTimestamp)
	gt.True(t, rejected[1].TakenAt.IsZero())
}

func TestSelect_InstantPolicy(t *testing.T) {
	yes := true
	records := []domain.Record{
		{Kind: domain.KindReaction, Index: 0, TakenAtRaw: "2024-01-01T00:00:00Z", Instant: &yes},
		{Kind: domain.KindReaction, Index: 1, TakenAtRaw: "2024-01-01T00:00:01Z"},
	}
	w := window.AllTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	kept, rejected := Select(records, w, domain.InstantExclude)
	gt.A(t, kept).Length(1)
	gt.Equal(t, kept[0].Record.Index, 1)
	gt.Equal(t, rejected[0].Code, domain.ErrCodeInstantPolicy)

	kept, _ = Select(records, w, domain.InstantOnly)
	gt.A(t, kept).Length(1)
	gt.Equal(t, kept[0].Record.Index, 0)
}
