// Package run 编排一次完整导出：准备共享资源 → 读取两个集合 → 逐集合导出 → 汇总报告。
package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/berealx/internal/app/export"
	"github.com/John-Robertt/berealx/internal/config"
	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/John-Robertt/berealx/internal/infra/logging"
	"github.com/John-Robertt/berealx/internal/infra/manifest"
	"github.com/John-Robertt/berealx/internal/resolve"
	"github.com/John-Robertt/berealx/internal/scan"
	"github.com/John-Robertt/berealx/internal/tzlocal"
)

// Deps 是由 CLI 注入的外部能力（测试中用假实现替换）。
type Deps struct {
	Embedder export.Embedder
	// Lookup 为空时只使用默认时区回退。
	Lookup tzlocal.Lookup
	// Compose 为空时使用 imgx.ComposeFiles。
	Compose export.ComposeFunc
}

type collection struct {
	kind    domain.Kind
	records []domain.Record
	report  *domain.CollectionReport
}

// Execute 执行一次导出并返回对外稳定的 RunReport。
// 除配置错误（由调用方在此之前处理）外，所有错误都降级为集合级或条目级结果。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	log := logging.From(ctx)

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:       uuid.NewString(),
		ExportRoot:  eff.ExportRoot,
		OutPath:     eff.OutPath,
		WindowStart: eff.Window.Start,
		WindowEnd:   eff.Window.End,
		StartedAt:   time.Now().UTC(),
		Items:       make([]domain.ItemResult, 0, 128),
	}
	log = log.With("run_id", rr.RunID)
	ctx = logging.With(ctx, log)

	kinds := enabledKinds(eff)

	if err := fsx.EnsureDir(eff.OutPath); err != nil {
		log.Error("无法创建输出目录", "out", eff.OutPath, "error", err)
		for _, k := range kinds {
			rr.Collections = append(rr.Collections, domain.CollectionReport{
				Kind:      k,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("无法创建输出目录：%v", err),
			})
		}
		return finish(rr)
	}

	// 读取阶段：先读完两个集合，进度总量才是确定的。
	loadStarted := time.Now()
	cols := make([]collection, 0, len(kinds))
	total := 0
	fields := map[string]any{}
	for _, k := range kinds {
		recs, err := export.Load(eff.ExportRoot, k)
		if err != nil {
			code := domain.ErrCodeIOFailed
			if errors.Is(err, export.ErrMissingInput) {
				code = domain.ErrCodeMissingInput
			}
			log.Warn("集合输入不可用，已跳过", "kind", string(k), "error", err)
			rr.Collections = append(rr.Collections, domain.CollectionReport{
				Kind:      k,
				ErrorCode: code,
				ErrorMsg:  err.Error(),
			})
			fields[k.Dir()] = "missing"
			continue
		}
		cols = append(cols, collection{kind: k, records: recs})
		total += len(recs)
		fields[k.Dir()] = len(recs)
	}
	if obs != nil {
		obs.OnPhaseDone("load", fields, time.Since(loadStarted))
	}

	// 共享资源：索引、解析器、时区换算、清单。
	prepStarted := time.Now()
	var idx resolve.Index
	indexed := 0
	if eff.DeepScan && len(cols) > 0 {
		x, err := scan.ScanImages(eff.ExportRoot, []string{eff.OutPath})
		if err != nil {
			log.Warn("深度扫描失败，仅使用约定目录", "error", err)
		} else {
			idx = x
			indexed = x.Len()
		}
	}
	resolver := resolve.New(eff.ExportRoot, idx)
	localizer := tzlocal.New(ctx, deps.Lookup, eff.DefaultTZ)

	var recorder export.Recorder
	if eff.Manifest && len(cols) > 0 {
		store, err := manifest.Open(ctx, filepath.Join(eff.OutPath, manifest.FileName))
		if err != nil {
			log.Warn("无法打开导出清单，本次不记录", "error", err)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn("关闭导出清单失败", "error", err)
				}
			}()
			recorder = store
		}
	}
	if obs != nil {
		obs.OnPhaseDone("prepare", map[string]any{
			"indexed":  indexed,
			"manifest": recorder != nil,
			"tz":       localizer.DefaultZone(),
		}, time.Since(prepStarted))
	}

	done := 0
	for i := range cols {
		c := &cols[i]
		ex := &export.Exporter{
			Opts: export.Options{
				Kind:        c.kind,
				ExportRoot:  eff.ExportRoot,
				OutRoot:     eff.OutPath,
				Window:      eff.Window,
				Naming:      eff.Naming,
				Instant:     eff.ReactionInstant,
				Composites:  eff.Composites && c.kind == domain.KindMemory,
				Sidecar:     eff.XMPSidecar,
				JPEGQuality: eff.JPEGQuality,
				RunID:       rr.RunID,
			},
			Resolver:  resolver,
			Localizer: localizer,
			Embedder:  deps.Embedder,
			Compose:   deps.Compose,
			Manifest:  recorder,
		}

		started := time.Now()
		rep, items := ex.Export(ctx, c.records, func(_, _ int, res domain.ItemResult, dur time.Duration) {
			done++
			if obs != nil {
				obs.OnItemDone(done, total, res, dur)
			}
		})
		rr.Collections = append(rr.Collections, rep)
		rr.Items = append(rr.Items, items...)

		log.Info("集合导出完成", "kind", string(c.kind), "exported", rep.Exported, "skipped", rep.Skipped, "failed", rep.Failed, "filtered", rep.Filtered)
		if obs != nil {
			obs.OnPhaseDone(c.kind.Dir(), map[string]any{
				"input":    rep.Input,
				"exported": rep.Exported,
				"skipped":  rep.Skipped,
				"failed":   rep.Failed,
				"filtered": rep.Filtered,
			}, time.Since(started))
		}
	}

	return finish(rr)
}

func enabledKinds(eff config.EffectiveConfig) []domain.Kind {
	kinds := make([]domain.Kind, 0, 2)
	if eff.Memories {
		kinds = append(kinds, domain.KindMemory)
	}
	if eff.Reactions {
		kinds = append(kinds, domain.KindReaction)
	}
	return kinds
}

func finish(rr domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// ExitCode 把报告映射为进程退出码：全部成功为 0，有跳过/失败/集合不可用为 1。
// 配置错误（2）在 Execute 之前由 CLI 处理。
func ExitCode(rr domain.RunReport) int {
	if rr.Summary.Skipped > 0 || rr.Summary.Failed > 0 {
		return 1
	}
	for _, c := range rr.Collections {
		if c.ErrorCode != "" {
			return 1
		}
	}
	return 0
}
