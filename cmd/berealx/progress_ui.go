package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/berealx/internal/app/run"
	"github.com/John-Robertt/berealx/internal/config"
	"github.com/John-Robertt/berealx/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

const barWidth = 30

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 默认单行进度条（\r 原地刷新）；verbose 时每条记录一行
type progressUI struct {
	w       io.Writer
	verbose bool

	mu        sync.Mutex
	startedAt time.Time
	barActive bool

	total    int
	done     int
	ok       int
	fail     int
	skip     int
	filtered int
}

func newProgressUI(w io.Writer, verbose bool) *progressUI {
	return &progressUI{w: w, verbose: verbose}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] berealx\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  export: %s\n", eff.ExportRoot)
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutPath)
	fmt.Fprintf(p.w, "  window: %s\n", eff.Window)
	fmt.Fprintf(p.w, "  collections: %s\n", collections(eff))
	fmt.Fprintf(p.w, "  composites: %s\n", onOff(eff.Composites))
	fmt.Fprintf(p.w, "  naming: %s\n", eff.Naming)
	fmt.Fprintf(p.w, "  reaction_instant: %s\n", eff.ReactionInstant)
	fmt.Fprintf(p.w, "  default_timezone: %s\n", orDash(eff.DefaultTZ))
	fmt.Fprintf(p.w, "  deep_scan: %s  xmp_sidecar: %s  manifest: %s\n", onOff(eff.DeepScan), onOff(eff.XMPSidecar), onOff(eff.Manifest))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endBarLocked()
	switch name {
	case "load":
		fmt.Fprintf(p.w, "读取: memories=%s realmojis=%s (%s)\n",
			countField(fields, "memories"), countField(fields, "reactions"), formatShortDuration(dur),
		)
	case "prepare":
		fmt.Fprintf(p.w, "准备: indexed=%d manifest=%v tz=%s (%s)\n\n",
			intField(fields, "indexed"), fields["manifest"], orDash(fmt.Sprint(fields["tz"])), formatShortDuration(dur),
		)
	case "memories", "reactions":
		fmt.Fprintf(p.w, "%s: exported=%d skipped=%d failed=%d filtered=%d (%s)\n",
			name,
			intField(fields, "exported"),
			intField(fields, "skipped"),
			intField(fields, "failed"),
			intField(fields, "filtered"),
			formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	switch res.Status {
	case domain.StatusExported:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	case domain.StatusFiltered:
		p.filtered++
	}

	if !p.verbose {
		fmt.Fprintf(p.w, "\r%s", p.barLocked())
		p.barActive = true
		if p.done >= p.total {
			p.endBarLocked()
		}
		return
	}

	// verbose：过滤掉的记录数量可能很大，只计数不逐条输出。
	if res.Status == domain.StatusFiltered {
		return
	}
	fmt.Fprintf(p.w, "[%d/%d] %s#%d %s %s%s (%s)\n",
		idx, total, res.Kind, res.Index, statusLabel(res.Status), orDash(res.TakenAt), itemNote(res), formatShortDuration(dur),
	)
}

func (p *progressUI) barLocked() string {
	filled := 0
	if p.total > 0 {
		filled = p.done * barWidth / p.total
	}
	return fmt.Sprintf("[%s%s] %d/%d ok=%d skip=%d fail=%d filtered=%d %s",
		strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled),
		p.done, p.total, p.ok, p.skip, p.fail, p.filtered, formatElapsed(time.Since(p.startedAt)),
	)
}

func (p *progressUI) endBarLocked() {
	if p.barActive {
		fmt.Fprintln(p.w)
		p.barActive = false
	}
}

func statusLabel(status string) string {
	switch status {
	case domain.StatusExported:
		return "OK"
	case domain.StatusSkipped:
		return "SKIP"
	case domain.StatusFailed:
		return "FAIL"
	default:
		return strings.ToUpper(status)
	}
}

func itemNote(res domain.ItemResult) string {
	if res.ErrorCode == "" {
		if res.TZSource != "" {
			return " tz=" + res.TZSource
		}
		return ""
	}
	return fmt.Sprintf(" %s: %s", res.ErrorCode, truncate(res.ErrorMsg, 120))
}

func collections(eff config.EffectiveConfig) string {
	var xs []string
	if eff.Memories {
		xs = append(xs, "memories")
	}
	if eff.Reactions {
		xs = append(xs, "realmojis")
	}
	if len(xs) == 0 {
		return "-"
	}
	return strings.Join(xs, ", ")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate 按字符（rune）截断，避免切坏多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if max <= 0 || len(rs) <= max {
		return s
	}
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// countField 用于 load 阶段：值为条数或 "missing"。
func countField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return "off"
	}
	return fmt.Sprint(v)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
