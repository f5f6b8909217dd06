package run

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/berealx/internal/config"
	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/exiftool"
	"github.com/John-Robertt/berealx/internal/infra/manifest"
	"github.com/John-Robertt/berealx/internal/window"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []domain.ItemResult
	lastTotal  int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res)
	o.lastTotal = total
}

type nopEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *nopEmbedder) Embed(ctx context.Context, path string, tags exiftool.Tags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return nil
}

func fakeCompose(front, back, out string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}

func newExport(t *testing.T, withReactions bool) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "memories.json"), `[
  {"frontImage":{"path":"/Photos/post/f1.webp"},"backImage":{"path":"/Photos/post/b1.webp"},
   "takenTime":"2024-06-01T12:00:00.000Z","location":{"latitude":40.7,"longitude":-74.0}},
  {"frontImage":{"path":"/Photos/post/f2.webp"},"backImage":{"path":"/Photos/post/b2.webp"},
   "takenTime":"2024-06-02T12:00:00.000Z"},
  {"frontImage":{"path":"/Photos/post/gone.webp"},"backImage":{"path":"/Photos/post/b1.webp"},
   "takenTime":"2024-06-03T12:00:00.000Z"},
  {"frontImage":{"path":"/Photos/post/f1.webp"},"backImage":{"path":"/Photos/post/b1.webp"},
   "takenTime":"not-a-time"}
]`)
	for _, name := range []string{"f1.webp", "b1.webp"} {
		writeFile(t, filepath.Join(root, "Photos", "post", name), "img")
	}
	// f2/b2 只存在于非约定目录，需要深度扫描才能找到。
	for _, name := range []string{"f2.webp", "b2.webp"} {
		writeFile(t, filepath.Join(root, "misc", name), "img")
	}
	if withReactions {
		writeFile(t, filepath.Join(root, "realmojis.json"), `[
  {"media":{"path":"/Photos/realmoji/r1.webp"},"postedAt":"2024-06-01T08:00:00Z","isInstant":true}
]`)
		writeFile(t, filepath.Join(root, "Photos", "realmoji", "r1.webp"), "img")
	}
	return root
}

func effFor(root string) config.EffectiveConfig {
	return config.EffectiveConfig{
		ExportRoot:      root,
		OutPath:         filepath.Join(root, "out"),
		Window:          window.AllTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		Memories:        true,
		Reactions:       true,
		Composites:      true,
		DefaultTZ:       "UTC",
		Naming:          domain.NamingUTC,
		ReactionInstant: domain.InstantAll,
		DeepScan:        true,
		Manifest:        true,
		JPEGQuality:     90,
		LogLevel:        "warn",
	}
}

func TestExecute_FullRun(t *testing.T) {
	root := newExport(t, true)
	eff := effFor(root)
	emb := &nopEmbedder{}
	obs := &recordObserver{}

	rr := Execute(context.Background(), eff, Deps{Embedder: emb, Compose: fakeCompose}, obs)

	if rr.RunID == "" {
		t.Fatalf("RunID 不应为空")
	}
	if len(rr.Collections) != 2 {
		t.Fatalf("期望 2 个集合，实际 %d：%+v", len(rr.Collections), rr.Collections)
	}
	mem := rr.Collections[0]
	if mem.Kind != domain.KindMemory || mem.Input != 4 || mem.Exported != 2 || mem.Skipped != 1 || mem.Filtered != 1 || mem.BadTimestamp != 1 {
		t.Fatalf("memories 汇总不符：%+v", mem)
	}
	if mem.Composites != 2 {
		t.Fatalf("期望 2 张合成图，实际 %d", mem.Composites)
	}
	rea := rr.Collections[1]
	if rea.Kind != domain.KindReaction || rea.Exported != 1 || rea.Composites != 0 {
		t.Fatalf("reactions 汇总不符：%+v", rea)
	}
	if rr.Summary.Exported != 3 || rr.Summary.Skipped != 1 || rr.Summary.Filtered != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}

	for _, p := range []string{
		"memories/2024-06-01_12-00-00_front.webp",
		"memories/2024-06-02_12-00-00_back.webp",
		"composites/2024-06-01_12-00-00_composite.jpg",
		"reactions/2024-06-01_08-00-00.webp",
	} {
		if _, err := os.Stat(filepath.Join(eff.OutPath, filepath.FromSlash(p))); err != nil {
			t.Fatalf("期望输出 %s：%v", p, err)
		}
	}
	// 2 条 memory × (front + back + composite) + 1 reaction
	if emb.calls != 7 {
		t.Fatalf("期望 7 次写入元数据，实际 %d", emb.calls)
	}

	store, err := manifest.Open(context.Background(), filepath.Join(eff.OutPath, manifest.FileName))
	if err != nil {
		t.Fatalf("打开清单失败：%v", err)
	}
	defer store.Close()
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("统计清单失败：%v", err)
	}
	if n != 7 {
		t.Fatalf("期望清单 7 行，实际 %d", n)
	}

	if obs.startCalls != 1 {
		t.Fatalf("OnStart 应调用一次，实际 %d", obs.startCalls)
	}
	if len(obs.items) != 5 || obs.lastTotal != 5 {
		t.Fatalf("进度单位应为输入记录：items=%d total=%d", len(obs.items), obs.lastTotal)
	}
	wantPhases := []string{"load", "prepare", "memories", "reactions"}
	if len(obs.phases) != len(wantPhases) {
		t.Fatalf("阶段不符：%v", obs.phases)
	}
	for i := range wantPhases {
		if obs.phases[i] != wantPhases[i] {
			t.Fatalf("阶段不符：%v", obs.phases)
		}
	}
	if ExitCode(rr) != 1 {
		t.Fatalf("有跳过时退出码应为 1")
	}
}

func TestExecute_WithoutDeepScanMissesUnconventionalFiles(t *testing.T) {
	root := newExport(t, true)
	eff := effFor(root)
	eff.DeepScan = false

	rr := Execute(context.Background(), eff, Deps{Embedder: &nopEmbedder{}, Compose: fakeCompose}, nil)

	if rr.Collections[0].Exported != 1 || rr.Collections[0].Skipped != 2 {
		t.Fatalf("memories 汇总不符：%+v", rr.Collections[0])
	}
}

func TestExecute_MissingInputIsCollectionScoped(t *testing.T) {
	root := newExport(t, false)
	eff := effFor(root)

	rr := Execute(context.Background(), eff, Deps{Embedder: &nopEmbedder{}, Compose: fakeCompose}, nil)

	if len(rr.Collections) != 2 {
		t.Fatalf("期望 2 个集合：%+v", rr.Collections)
	}
	var reaction domain.CollectionReport
	for _, c := range rr.Collections {
		if c.Kind == domain.KindReaction {
			reaction = c
		}
	}
	if reaction.ErrorCode != domain.ErrCodeMissingInput {
		t.Fatalf("期望 reactions 为 %q，实际 %+v", domain.ErrCodeMissingInput, reaction)
	}
	if rr.Summary.MissingInput != 1 || rr.Summary.Exported != 2 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
}

func TestExecute_DisabledCollectionsAndManifest(t *testing.T) {
	root := newExport(t, true)
	eff := effFor(root)
	eff.Memories = false
	eff.Manifest = false

	rr := Execute(context.Background(), eff, Deps{Embedder: &nopEmbedder{}}, nil)

	if len(rr.Collections) != 1 || rr.Collections[0].Kind != domain.KindReaction {
		t.Fatalf("只应导出 reactions：%+v", rr.Collections)
	}
	if _, err := os.Stat(filepath.Join(eff.OutPath, manifest.FileName)); !os.IsNotExist(err) {
		t.Fatalf("--no-manifest 时不应创建清单，Stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(eff.OutPath, "memories")); !os.IsNotExist(err) {
		t.Fatalf("关闭 memories 时不应创建 memories/，Stat err=%v", err)
	}
	if ExitCode(rr) != 0 {
		t.Fatalf("全部成功时退出码应为 0：%+v", rr.Summary)
	}
}

func TestExecute_OutPathIsFile(t *testing.T) {
	root := newExport(t, true)
	eff := effFor(root)
	writeFile(t, eff.OutPath, "x")

	rr := Execute(context.Background(), eff, Deps{Embedder: &nopEmbedder{}}, nil)

	if len(rr.Collections) != 2 || rr.Collections[0].ErrorCode != domain.ErrCodeIOFailed {
		t.Fatalf("输出目录不可用时集合应标记 io_failed：%+v", rr.Collections)
	}
	if len(rr.Items) != 0 || ExitCode(rr) != 1 {
		t.Fatalf("不应产生条目，且退出码为 1：items=%d", len(rr.Items))
	}
}
