package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/John-Robertt/berealx/internal/app/export"
	"github.com/John-Robertt/berealx/internal/app/run"
	"github.com/John-Robertt/berealx/internal/config"
	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/exiftool"
	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/John-Robertt/berealx/internal/infra/logging"
	"github.com/John-Robertt/berealx/internal/tzlocal"
)

// ReportFile 是写入输出目录的运行报告文件名。
const ReportFile = "report.json"

const (
	exitOK     = 0
	exitIssues = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args)
	stop()
	os.Exit(code)
}

// app 汇集进程级依赖，测试中替换为假实现。
type app struct {
	stdout, stderr       io.Writer
	stdoutTTY, stderrTTY bool
	getwd                func() (string, error)
	now                  func() time.Time
	newLookup            func() (tzlocal.Lookup, error)
	newEmbedder          func(path string) embedder
}

type embedder interface {
	export.Embedder
	Check() error
}

func newApp() *app {
	return &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
		getwd:     os.Getwd,
		now:       time.Now,
		newLookup: tzlocal.NewGeoLookup,
		newEmbedder: func(path string) embedder {
			return exiftool.New(path)
		},
	}
}

// cliFlags 是 CLI 解析目标；与 config.CLIArgs 的区别在于这里还不知道哪些被显式指定。
type cliFlags struct {
	verbose         bool
	logLevel        string
	exiftoolPath    string
	timespan        string
	year            int64
	outPath         string
	berealPath      string
	noMemories      bool
	noReactions     bool
	noComposites    bool
	noManifest      bool
	defaultTZ       string
	naming          string
	reactionInstant string
	deepScan        bool
	xmpSidecar      bool
}

func (a *app) run(ctx context.Context, argv []string) int {
	var f cliFlags
	code := exitOK

	cmd := &cli.Command{
		Name:      "berealx",
		Usage:     "把 BeReal 数据导出整理成带拍摄时间与位置元数据的照片库",
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "输出调试日志，并逐条显示处理结果", Sources: cli.EnvVars("BEREALX_VERBOSE"), Destination: &f.verbose},
			&cli.StringFlag{Name: "log-level", Usage: "日志级别：debug|info|warn|error", Sources: cli.EnvVars("BEREALX_LOG_LEVEL"), Destination: &f.logLevel},
			&cli.StringFlag{Name: "exiftool-path", Usage: "exiftool 可执行文件路径", Sources: cli.EnvVars("BEREALX_EXIFTOOL_PATH"), Destination: &f.exiftoolPath},
			&cli.StringFlag{Name: "timespan", Aliases: []string{"t"}, Usage: "时间段 DD.MM.YYYY-DD.MM.YYYY，两端可用 '*'", Sources: cli.EnvVars("BEREALX_TIMESPAN"), Destination: &f.timespan},
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "只导出某一年", Sources: cli.EnvVars("BEREALX_YEAR"), Destination: &f.year},
			&cli.StringFlag{Name: "out-path", Aliases: []string{"p"}, Usage: "输出目录（默认 ./out）", Sources: cli.EnvVars("BEREALX_OUT_PATH"), Destination: &f.outPath},
			&cli.StringFlag{Name: "bereal-path", Usage: "BeReal 导出目录（默认当前目录）", Sources: cli.EnvVars("BEREALX_BEREAL_PATH"), Destination: &f.berealPath},
			&cli.BoolFlag{Name: "no-memories", Usage: "不导出 memories", Sources: cli.EnvVars("BEREALX_NO_MEMORIES"), Destination: &f.noMemories},
			&cli.BoolFlag{Name: "no-realmojis", Aliases: []string{"no-reactions"}, Usage: "不导出 realmojis", Sources: cli.EnvVars("BEREALX_NO_REALMOJIS"), Destination: &f.noReactions},
			&cli.BoolFlag{Name: "no-composites", Usage: "不生成前后摄合成图", Sources: cli.EnvVars("BEREALX_NO_COMPOSITES"), Destination: &f.noComposites},
			&cli.StringFlag{Name: "default-timezone", Usage: "无坐标或查询失败时使用的 IANA 时区", Sources: cli.EnvVars("BEREALX_DEFAULT_TIMEZONE"), Destination: &f.defaultTZ},
			&cli.StringFlag{Name: "naming", Usage: "文件命名使用的时刻：utc|local", Sources: cli.EnvVars("BEREALX_NAMING"), Destination: &f.naming},
			&cli.StringFlag{Name: "reaction-instant", Usage: "realmoji instant 过滤：all|only|exclude", Sources: cli.EnvVars("BEREALX_REACTION_INSTANT"), Destination: &f.reactionInstant},
			&cli.BoolFlag{Name: "deep-scan", Usage: "约定目录找不到时，按文件名在整个导出目录中查找", Sources: cli.EnvVars("BEREALX_DEEP_SCAN"), Destination: &f.deepScan},
			&cli.BoolFlag{Name: "xmp-sidecar", Usage: "为每个输出文件写 .xmp sidecar", Sources: cli.EnvVars("BEREALX_XMP_SIDECAR"), Destination: &f.xmpSidecar},
			&cli.BoolFlag{Name: "no-manifest", Usage: "不写 manifest.sqlite", Sources: cli.EnvVars("BEREALX_NO_MANIFEST"), Destination: &f.noManifest},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			code = a.execute(ctx, cliArgs(c, f))
			return nil
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		fmt.Fprintf(a.stderr, "参数错误：%v\n", err)
		return exitConfig
	}
	return code
}

func cliArgs(c *cli.Command, f cliFlags) config.CLIArgs {
	return config.CLIArgs{
		ExportRoot: f.berealPath,

		OutPath:    f.outPath,
		OutPathSet: c.IsSet("out-path"),

		Timespan:    f.timespan,
		TimespanSet: c.IsSet("timespan"),

		Year:    int(f.year),
		YearSet: c.IsSet("year"),

		DefaultTZ:    f.defaultTZ,
		DefaultTZSet: c.IsSet("default-timezone"),

		ExiftoolPath:    f.exiftoolPath,
		ExiftoolPathSet: c.IsSet("exiftool-path"),

		Naming:    f.naming,
		NamingSet: c.IsSet("naming"),

		ReactionInstant:    f.reactionInstant,
		ReactionInstantSet: c.IsSet("reaction-instant"),

		DeepScan:    f.deepScan,
		DeepScanSet: c.IsSet("deep-scan"),

		XMPSidecar:    f.xmpSidecar,
		XMPSidecarSet: c.IsSet("xmp-sidecar"),

		LogLevel:    f.logLevel,
		LogLevelSet: c.IsSet("log-level"),
		Verbose:     f.verbose,

		NoMemories:   f.noMemories,
		NoReactions:  f.noReactions,
		NoComposites: f.noComposites,
		NoManifest:   f.noManifest,
	}
}

func (a *app) execute(ctx context.Context, args config.CLIArgs) int {
	cwd, err := a.getwd()
	if err != nil {
		fmt.Fprintf(a.stderr, "读取当前目录失败：%v\n", err)
		return exitIssues
	}

	eff, err := config.LoadEffective(cwd, args, a.now())
	if err != nil {
		fmt.Fprintf(a.stderr, "配置错误：%v\n", err)
		return exitConfig
	}

	logger := logging.New(eff.LogLevel, a.stderr)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	if eff.ConfigFile != "" {
		logger.Debug("已读取配置文件", "path", eff.ConfigFile)
	}
	if eff.WindowWarning != "" {
		logger.Warn(eff.WindowWarning)
	}

	emb := a.newEmbedder(eff.ExiftoolPath)
	if err := emb.Check(); err != nil {
		logger.Warn("找不到 exiftool，照片将不带拍摄时间与位置元数据", "path", eff.ExiftoolPath, "error", err)
	}

	lookup := a.loadLookup(logger)

	var obs run.Observer
	if a.stderrTTY {
		obs = newProgressUI(a.stderr, eff.Verbose)
	}

	rr := run.Execute(ctx, eff, run.Deps{Embedder: emb, Lookup: lookup}, obs)

	if err := writeReportFile(eff.OutPath, rr); err != nil {
		logger.Warn("写入 report.json 失败", "error", err)
	}
	a.emitReport(rr)
	if a.stderrTTY {
		fmt.Fprintf(a.stderr, "out: %s\n", eff.OutPath)
		fmt.Fprintf(a.stderr, "report: %s\n", filepath.Join(eff.OutPath, ReportFile))
	}
	return run.ExitCode(rr)
}

// loadLookup 加载经纬度→时区数据（数百毫秒），交互终端下显示 spinner。
// 失败时退化为仅使用默认时区。
func (a *app) loadLookup(logger *slog.Logger) tzlocal.Lookup {
	if a.newLookup == nil {
		return nil
	}
	if a.stderrTTY {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.stderr))
		s.Suffix = " 加载时区数据…"
		s.Start()
		defer s.Stop()
	}
	lookup, err := a.newLookup()
	if err != nil {
		logger.Warn("加载时区数据失败，所有记录将使用默认时区", "error", err)
		return nil
	}
	return lookup
}

func (a *app) emitReport(rr domain.RunReport) {
	if a.stdoutTTY {
		for _, c := range rr.Collections {
			fmt.Fprintln(a.stdout, formatCollectionLine(c))
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(a.stdout)
	_ = enc.Encode(rr)
	for _, c := range rr.Collections {
		fmt.Fprintln(a.stderr, formatCollectionLine(c))
	}
}

func formatCollectionLine(c domain.CollectionReport) string {
	if c.ErrorCode != "" {
		return fmt.Sprintf("%s: %s (%s)", c.Kind.Dir(), c.ErrorCode, truncate(c.ErrorMsg, 160))
	}
	return fmt.Sprintf("%s: exported=%d skipped=%d failed=%d filtered=%d composites=%d embed_failures=%d",
		c.Kind.Dir(), c.Exported, c.Skipped, c.Failed, c.Filtered, c.Composites, c.EmbedFailures,
	)
}

func writeReportFile(out string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(out, ReportFile, b)
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
