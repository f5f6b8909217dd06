// Package export 把单个记录集合（memories 或 reactions）导出到输出目录。
//
// 流程（按记录串行）：过滤 → 排序 → 解析源文件 → 换算当地时间 → 复制 → 写入元数据 → 合成。
// 单条记录的任何失败都降级为该条的 ItemResult，不影响其他记录。
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/berealx/internal/app/planner"
	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/exiftool"
	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/John-Robertt/berealx/internal/infra/imgx"
	"github.com/John-Robertt/berealx/internal/infra/logging"
	"github.com/John-Robertt/berealx/internal/infra/manifest"
	"github.com/John-Robertt/berealx/internal/resolve"
	"github.com/John-Robertt/berealx/internal/tzlocal"
	"github.com/John-Robertt/berealx/internal/window"
	"github.com/John-Robertt/berealx/internal/xmp"
)

type Resolver interface {
	Resolve(ref string) (resolve.Resolution, bool)
	// Candidates 返回 Resolve 会依次探测的路径（用于诊断日志）。
	Candidates(ref string) []string
}

type Localizer interface {
	Localize(t time.Time, loc *domain.Coords) tzlocal.Localized
}

type Embedder interface {
	Embed(ctx context.Context, path string, tags exiftool.Tags) error
}

// Recorder 接收每个输出文件的清单记录。
type Recorder interface {
	Put(ctx context.Context, e manifest.Entry) error
}

// ComposeFunc 把 front 叠加到 back 上并写入 out。
type ComposeFunc func(front, back, out string, quality int) error

type Options struct {
	Kind       domain.Kind
	ExportRoot string
	OutRoot    string
	Window     window.Window
	Naming     domain.Naming
	Instant    domain.InstantPolicy
	Composites bool
	Sidecar    bool
	// JPEGQuality 只影响合成图；<=0 使用默认值。
	JPEGQuality int
	RunID       string
}

type Exporter struct {
	Opts      Options
	Resolver  Resolver
	Localizer Localizer
	Embedder  Embedder
	// Compose 为空时使用 imgx.ComposeFiles。
	Compose ComposeFunc
	// Manifest 为空时不记录清单。
	Manifest Recorder
}

// Progress 每处理完一条输入记录回调一次（无论结果如何）。
type Progress func(done, total int, res domain.ItemResult, dur time.Duration)

// Export 导出一个集合，返回集合汇总与逐条结果（结果顺序：先过滤掉的，再按导出顺序）。
func (e *Exporter) Export(ctx context.Context, records []domain.Record, progress Progress) (domain.CollectionReport, []domain.ItemResult) {
	log := logging.From(ctx).With("kind", string(e.Opts.Kind))

	kept, rejected := Select(records, e.Opts.Window, e.Opts.Instant)
	total := len(records)
	items := make([]domain.ItemResult, 0, total)

	emit := func(res domain.ItemResult, dur time.Duration) {
		items = append(items, res)
		if progress != nil {
			progress(len(items), total, res, dur)
		}
	}

	for _, r := range rejected {
		if r.Code == domain.ErrCodeBadTimestamp {
			log.Info("时间戳无法解析，已跳过", "index", r.Record.Index, "raw", r.Record.TakenAtRaw)
		}
		emit(filteredItem(r), 0)
	}

	pl := planner.New(e.Opts.OutRoot, e.Opts.Naming)
	for _, s := range kept {
		if err := ctx.Err(); err != nil {
			res := baseItem(s)
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeCanceled
			res.ErrorMsg = err.Error()
			emit(res, 0)
			continue
		}
		started := time.Now()
		res := e.exportOne(ctx, log.With("index", s.Record.Index), pl, s)
		emit(res, time.Since(started))
	}

	return domain.Tally(e.Opts.Kind, total, items), items
}

func baseItem(s Selected) domain.ItemResult {
	return domain.ItemResult{
		Kind:       s.Record.Kind,
		Index:      s.Record.Index,
		TakenAtRaw: s.Record.TakenAtRaw,
		TakenAt:    s.TakenAt.UTC().Format(time.RFC3339),
		Status:     domain.StatusExported,
		Files:      []domain.FileResult{},
	}
}

func filteredItem(r Rejected) domain.ItemResult {
	it := domain.ItemResult{
		Kind:       r.Record.Kind,
		Index:      r.Record.Index,
		TakenAtRaw: r.Record.TakenAtRaw,
		Status:     domain.StatusFiltered,
		ErrorCode:  r.Code,
		Files:      []domain.FileResult{},
	}
	if !r.TakenAt.IsZero() {
		it.TakenAt = r.TakenAt.UTC().Format(time.RFC3339)
	}
	switch r.Code {
	case domain.ErrCodeBadTimestamp:
		it.ErrorMsg = fmt.Sprintf("无法解析时间戳：%q", r.Record.TakenAtRaw)
	case domain.ErrCodeOutOfWindow:
		it.ErrorMsg = "不在时间窗口内"
	case domain.ErrCodeInstantPolicy:
		it.ErrorMsg = "不满足 instant 过滤策略"
	}
	return it
}

func (e *Exporter) exportOne(ctx context.Context, log *slog.Logger, pl *planner.Planner, s Selected) domain.ItemResult {
	r := s.Record
	item := baseItem(s)

	// 解析：全部角色都找到才继续；缺任意一个则整条跳过，不复制任何文件。
	srcs := make(map[domain.Role]string, len(r.Images))
	var missing, tried []string
	for _, role := range r.Kind.Roles() {
		ref, _ := r.Image(role)
		if res, ok := e.resolve(ref.Path); ok {
			srcs[role] = res.Path
			item.Files = append(item.Files, domain.FileResult{Role: role, Src: e.relSrc(res.Path), Status: domain.FileStatusNotCopied})
			continue
		}
		missing = append(missing, fmt.Sprintf("%s=%q", role, ref.Path))
		if strings.TrimSpace(ref.Path) != "" {
			tried = append(tried, e.Resolver.Candidates(ref.Path)...)
		}
		item.Files = append(item.Files, domain.FileResult{Role: role, Src: ref.Path, Status: domain.FileStatusNotCopied})
	}
	if len(missing) > 0 {
		item.Status = domain.StatusSkipped
		item.ErrorCode = domain.ErrCodeMissingFile
		item.ErrorMsg = "找不到源文件：" + strings.Join(missing, ", ")
		log.Info("源文件缺失，已跳过", "missing", missing)
		log.Debug("已探测的候选路径", "candidates", tried)
		return item
	}

	loc := e.Localizer.Localize(s.TakenAt, r.Location)
	item.LocalTime = loc.Local.Format(time.RFC3339)
	item.TZSource = string(loc.Source)

	plan, err := pl.Plan(planner.Input{
		Kind:       r.Kind,
		TakenUTC:   s.TakenAt,
		TakenLocal: loc.Local,
		Sources:    srcs,
		Location:   r.Location,
		Composite:  e.Opts.Composites,
	})
	if err != nil {
		return failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("规划失败：%v", err))
	}
	for i, c := range plan.Copies {
		item.Files[i].Dst = e.relDst(c.DstAbs)
	}

	if err := fsx.EnsureDir(filepath.Join(e.Opts.OutRoot, r.Kind.Dir())); err != nil {
		return failItem(item, ioCode(err), err.Error())
	}

	// 复制：任意一个失败即整条失败（已复制的副本保留，重跑时会被覆盖）。
	for i, c := range plan.Copies {
		if err := fsx.CopyFileAtomic(c.SrcAbs, c.DstAbs); err != nil {
			item.Files[i].Status = domain.FileStatusFailed
			log.Warn("复制失败", "src", c.SrcAbs, "dst", c.DstAbs, "error", err)
			return failItem(item, ioCode(err), fmt.Sprintf("复制 %s 失败：%v", c.Role, err))
		}
		item.Files[i].Status = domain.FileStatusCopied
	}

	tags := exiftool.Tags{Taken: loc.Local, Location: validCoords(r.Location)}
	allEmbedded := true
	for i, c := range plan.Copies {
		if e.embed(ctx, log, &item, c.DstAbs, tags) {
			item.Files[i].Status = domain.FileStatusEmbedded
		} else {
			item.Files[i].Status = domain.FileStatusEmbedFailed
			allEmbedded = false
		}
		e.annotate(ctx, log, c.DstAbs, c.SrcAbs, c.Role, s, loc)
	}

	if plan.Composite != nil && allEmbedded {
		item.Files = append(item.Files, e.composite(ctx, log, &item, plan.Composite, tags, s, loc))
	}
	return item
}

func (e *Exporter) composite(ctx context.Context, log *slog.Logger, item *domain.ItemResult, cp *domain.CompositePlan, tags exiftool.Tags, s Selected, loc tzlocal.Localized) domain.FileResult {
	fr := domain.FileResult{Role: domain.RoleComposite, Dst: e.relDst(cp.DstAbs), Status: domain.FileStatusFailed}

	compose := e.Compose
	if compose == nil {
		compose = imgx.ComposeFiles
	}

	err := fsx.EnsureDir(filepath.Dir(cp.DstAbs))
	if err == nil {
		err = compose(cp.FrontAbs, cp.BackAbs, cp.DstAbs, e.Opts.JPEGQuality)
	}
	if err != nil {
		log.Warn("合成失败", "front", cp.FrontAbs, "back", cp.BackAbs, "error", err)
		if item.ErrorCode == "" {
			item.ErrorCode = domain.ErrCodeCompositeFailed
			item.ErrorMsg = fmt.Sprintf("合成失败：%v", err)
		}
		return fr
	}

	if e.embed(ctx, log, item, cp.DstAbs, tags) {
		fr.Status = domain.FileStatusEmbedded
	} else {
		fr.Status = domain.FileStatusEmbedFailed
	}
	e.annotate(ctx, log, cp.DstAbs, "", domain.RoleComposite, s, loc)
	return fr
}

// embed 写入元数据；失败只记日志与 item 级错误码（记录仍视为已导出）。
func (e *Exporter) embed(ctx context.Context, log *slog.Logger, item *domain.ItemResult, path string, tags exiftool.Tags) bool {
	if err := e.Embedder.Embed(ctx, path, tags); err != nil {
		log.Warn("写入元数据失败", "path", path, "error", err)
		if item.ErrorCode == "" {
			item.ErrorCode = domain.ErrCodeEmbedFailed
			item.ErrorMsg = fmt.Sprintf("写入元数据失败：%s", filepath.Base(path))
		}
		return false
	}
	return true
}

// annotate 写 XMP sidecar 与清单行；两者都是附加产物，失败只记日志。
func (e *Exporter) annotate(ctx context.Context, log *slog.Logger, dst, src string, role domain.Role, s Selected, loc tzlocal.Localized) {
	if e.Opts.Sidecar {
		if _, err := xmp.Write(dst, xmp.Meta{Taken: loc.Local, Location: validCoords(s.Record.Location)}); err != nil {
			log.Warn("写入 XMP 失败", "path", dst, "error", err)
		}
	}
	if e.Manifest != nil {
		err := e.Manifest.Put(ctx, manifest.Entry{
			Dst:        e.relDst(dst),
			Kind:       s.Record.Kind,
			Role:       role,
			Src:        e.relSrc(src),
			TakenUTC:   s.TakenAt,
			TakenLocal: loc.Local,
			TZSource:   string(loc.Source),
			Location:   validCoords(s.Record.Location),
			RunID:      e.Opts.RunID,
		})
		if err != nil {
			log.Warn("写入清单失败", "path", dst, "error", err)
		}
	}
}

func (e *Exporter) resolve(ref string) (resolve.Resolution, bool) {
	if strings.TrimSpace(ref) == "" {
		return resolve.Resolution{}, false
	}
	return e.Resolver.Resolve(ref)
}

func failItem(item domain.ItemResult, code, msg string) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
	return item
}

// ioCode 区分目标路径类型冲突（需要用户手动清理）与其他 I/O 失败。
func ioCode(err error) string {
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeIOFailed
}

func validCoords(c *domain.Coords) *domain.Coords {
	if c == nil || !c.Valid() {
		return nil
	}
	return c
}

func (e *Exporter) relSrc(abs string) string { return relOrAbs(e.Opts.ExportRoot, abs) }
func (e *Exporter) relDst(abs string) string { return relOrAbs(e.Opts.OutRoot, abs) }

// relOrAbs 尽量输出相对路径（报告更易读）；不在 base 之下时保留原值。
func relOrAbs(base, p string) string {
	if p == "" || base == "" {
		return p
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}
