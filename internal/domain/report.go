package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusExported = "exported"
	StatusSkipped  = "skipped"
	StatusFiltered = "filtered"
	StatusFailed   = "failed"
)

const (
	FileStatusCopied      = "copied"
	FileStatusEmbedded    = "embedded"
	FileStatusEmbedFailed = "embed_failed"
	FileStatusFailed      = "failed"
	FileStatusNotCopied   = "not_copied"
)

const (
	ErrCodeBadTimestamp    = "bad_timestamp"
	ErrCodeOutOfWindow     = "out_of_window"
	ErrCodeInstantPolicy   = "instant_policy"
	ErrCodeMissingFile     = "missing_file"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodeEmbedFailed     = "embed_failed"
	ErrCodeCompositeFailed = "composite_failed"
	ErrCodeMissingInput    = "missing_input"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeCanceled        = "canceled"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID      string `json:"run_id"`
	ExportRoot string `json:"export_root"`
	OutPath    string `json:"out_path"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary     ReportSummary      `json:"summary"`
	Collections []CollectionReport `json:"collections"`
	Items       []ItemResult       `json:"items"`
}

type ReportSummary struct {
	Exported int `json:"exported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Filtered int `json:"filtered"`
	// MissingInput 是因输入文件缺失/损坏而整体跳过的集合数。
	MissingInput int `json:"missing_input"`
}

// CollectionReport 是单个集合（memories / reactions）的汇总。
//
// 约束：Input == Exported + Skipped + Failed + Filtered（每条输入恰好一个终态）。
type CollectionReport struct {
	Kind  Kind `json:"kind"`
	Input int  `json:"input"`

	Exported     int `json:"exported"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	Filtered     int `json:"filtered"`
	BadTimestamp int `json:"bad_timestamp"`

	EmbedFailures     int `json:"embed_failures"`
	Composites        int `json:"composites"`
	CompositeFailures int `json:"composite_failures"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type ItemResult struct {
	Kind       Kind   `json:"kind"`
	Index      int    `json:"index"`
	TakenAtRaw string `json:"taken_at_raw"`
	TakenAt    string `json:"taken_at"`
	LocalTime  string `json:"local_time"`
	TZSource   string `json:"tz_source"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

type FileResult struct {
	Role   Role   `json:"role"`
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`
}

// Tally 由条目结果计算集合汇总。
func Tally(kind Kind, input int, items []ItemResult) CollectionReport {
	c := CollectionReport{Kind: kind, Input: input}
	for _, it := range items {
		switch it.Status {
		case StatusExported:
			c.Exported++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		case StatusFiltered:
			c.Filtered++
		}
		if it.ErrorCode == ErrCodeBadTimestamp {
			c.BadTimestamp++
		}
		for _, f := range it.Files {
			if f.Status == FileStatusEmbedFailed {
				c.EmbedFailures++
			}
			if f.Role == RoleComposite {
				if f.Status == FileStatusFailed {
					c.CompositeFailures++
				} else {
					c.Composites++
				}
			}
		}
	}
	return c
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：memory 在前、reaction 在后；同类内部保持处理顺序
// 3) summary 由 items 与 collections 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	r.WindowStart = r.WindowStart.UTC()
	r.WindowEnd = r.WindowEnd.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return kindRank(r.Items[i].Kind) < kindRank(r.Items[j].Kind)
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusExported:
			s.Exported++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusFiltered:
			s.Filtered++
		}
	}
	for _, c := range r.Collections {
		if c.ErrorCode == ErrCodeMissingInput {
			s.MissingInput++
		}
	}
	r.Summary = s
}

func kindRank(k Kind) int {
	switch k {
	case KindMemory:
		return 0
	case KindReaction:
		return 1
	default:
		return 2
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（nil 切片输出为 []）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Collections == nil {
		a.Collections = []CollectionReport{}
	}
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
