package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SpanLayout 是显式时间段两端的日期格式（DD.MM.YYYY）。
const SpanLayout = "02.01.2006"

// Wildcard 表示该方向不设边界。
const Wildcard = "*"

// Epoch 是“全部时间”的起点。
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Window 是闭区间 [Start, End]（UTC）。
//
// 不变量：Start <= End；构造后只读。
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SpanError 表示显式时间段无法解析。
type SpanError struct {
	Input string
	Err   error
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("时间段 %q 无效（格式 DD.MM.YYYY-DD.MM.YYYY，两端可用 '*'）：%v", e.Input, e.Err)
}

func (e *SpanError) Unwrap() error { return e.Err }

var errStartAfterEnd = errors.New("起始日期晚于结束日期")

// New 校验并构造窗口。
func New(start, end time.Time) (Window, error) {
	start, end = start.UTC(), end.UTC()
	if start.After(end) {
		return Window{}, errStartAfterEnd
	}
	return Window{Start: start, End: end}, nil
}

// AllTime 返回 [Epoch, now]。
func AllTime(now time.Time) Window {
	return Window{Start: Epoch, End: now.UTC()}
}

// ForYear 返回 [Y-01-01T00:00:00Z, Y-12-31T23:59:59Z]。
func ForYear(year int) Window {
	return Window{
		Start: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC),
	}
}

// ParseSpan 解析 "DD.MM.YYYY-DD.MM.YYYY"。
// 起点取当天 00:00:00，终点取当天 23:59:59；'*' 分别对应 Epoch 与 now。
func ParseSpan(span string, now time.Time) (Window, error) {
	raw := span
	span = strings.TrimSpace(span)

	parts := strings.Split(span, "-")
	if len(parts) != 2 {
		return Window{}, &SpanError{Input: raw, Err: errors.New("必须且只能包含一个 '-'")}
	}
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	start := Epoch
	if startStr != Wildcard {
		d, err := time.ParseInLocation(SpanLayout, startStr, time.UTC)
		if err != nil {
			return Window{}, &SpanError{Input: raw, Err: err}
		}
		start = d
	}

	end := now.UTC()
	if endStr != Wildcard {
		d, err := time.ParseInLocation(SpanLayout, endStr, time.UTC)
		if err != nil {
			return Window{}, &SpanError{Input: raw, Err: err}
		}
		end = endOfDay(d)
	}

	w, err := New(start, end)
	if err != nil {
		return Window{}, &SpanError{Input: raw, Err: err}
	}
	return w, nil
}

// Resolve 按优先级选择窗口来源：显式时间段 > 年份 > 全部时间。
//
// year<=0 视为未指定。span 与 year 同时给出时返回非空 warning。
func Resolve(span string, year int, now time.Time) (w Window, warning string, err error) {
	if strings.TrimSpace(span) != "" {
		w, err = ParseSpan(span, now)
		if err != nil {
			return Window{}, "", err
		}
		if year > 0 {
			warning = fmt.Sprintf("同时指定了时间段与年份（%d），以时间段为准", year)
		}
		return w, warning, nil
	}
	if year > 0 {
		return ForYear(year), "", nil
	}
	return AllTime(now), "", nil
}

// Contains 判断 t 是否落在窗口内（两端闭区间）。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " .. " + w.End.Format(time.RFC3339)
}

func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
}
