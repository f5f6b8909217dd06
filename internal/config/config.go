package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/exiftool"
	"github.com/John-Robertt/berealx/internal/infra/imgx"
	"github.com/John-Robertt/berealx/internal/infra/logging"
	"github.com/John-Robertt/berealx/internal/window"
	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeTimespanInvalid 表示显式时间段格式错误（或起点晚于终点）。
	ErrCodeTimespanInvalid = "config_timespan_invalid"
)

// FileName 是导出根目录下的可选配置文件名。
const FileName = "berealx.yaml"

// DefaultOutDir 是未指定输出目录时相对 cwd 的默认值。
const DefaultOutDir = "out"

// CLIArgs 保留 “是否显式指定” 的信息，保证 CLI 能覆盖配置文件（包括覆盖为零值）。
type CLIArgs struct {
	// ExportRoot 为空时使用 cwd。
	ExportRoot string

	OutPath    string
	OutPathSet bool

	Timespan    string
	TimespanSet bool

	Year    int
	YearSet bool

	DefaultTZ    string
	DefaultTZSet bool

	ExiftoolPath    string
	ExiftoolPathSet bool

	Naming    string
	NamingSet bool

	ReactionInstant    string
	ReactionInstantSet bool

	DeepScan    bool
	DeepScanSet bool

	XMPSidecar    bool
	XMPSidecarSet bool

	LogLevel    string
	LogLevelSet bool
	Verbose     bool

	// 以下开关只能关闭功能。
	NoMemories   bool
	NoReactions  bool
	NoComposites bool
	NoManifest   bool
}

// FileConfig 对应 berealx.yaml。未知字段忽略。
type FileConfig struct {
	OutPath         string `yaml:"out_path"`
	Timespan        string `yaml:"timespan"`
	Year            int    `yaml:"year"`
	DefaultTimezone string `yaml:"default_timezone"`
	ExiftoolPath    string `yaml:"exiftool_path"`
	Memories        *bool  `yaml:"memories"`
	Reactions       *bool  `yaml:"reactions"`
	Composites      *bool  `yaml:"composites"`
	Naming          string `yaml:"naming"`
	ReactionInstant string `yaml:"reaction_instant"`
	DeepScan        *bool  `yaml:"deep_scan"`
	XMPSidecar      *bool  `yaml:"xmp_sidecar"`
	Manifest        *bool  `yaml:"manifest"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
	LogLevel        string `yaml:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（构造后只读，显式传递给各阶段）。
type EffectiveConfig struct {
	ExportRoot string
	OutPath    string
	// ConfigFile 是实际读取到的配置文件路径；未读取时为空。
	ConfigFile string

	Window        window.Window
	WindowWarning string

	Memories   bool
	Reactions  bool
	Composites bool

	DefaultTZ    string
	ExiftoolPath string

	Naming          domain.Naming
	ReactionInstant domain.InstantPolicy

	DeepScan    bool
	XMPSidecar  bool
	Manifest    bool
	JPEGQuality int

	LogLevel string
	Verbose  bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeTimespanInvalid:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case ErrCodeInvalid:
		if e.Path != "" && e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取可选的 <export-root>/berealx.yaml，并与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 配置文件 > 默认值。
// 路径解析：CLI 给出的相对路径相对 cwd；配置文件中的相对路径相对导出根目录。
func LoadEffective(cwd string, cli CLIArgs, now time.Time) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	root := cwdAbs
	if strings.TrimSpace(cli.ExportRoot) != "" {
		root = absCleanFrom(cwdAbs, cli.ExportRoot)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: root, Err: fmt.Errorf("导出目录不可用：%w", err)}
	}
	if !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: root, Err: errors.New("导出路径不是目录")}
	}

	cfgPath := filepath.Join(root, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		cfgPath = ""
	}

	return merge(cwdAbs, root, cli, fc, cfgPath, now)
}

func merge(cwd, root string, cli CLIArgs, fc FileConfig, cfgPath string, now time.Time) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// out：CLI（相对 cwd）> 配置（相对导出根）> <cwd>/out
	out := filepath.Join(cwd, DefaultOutDir)
	switch {
	case cli.OutPathSet && strings.TrimSpace(cli.OutPath) != "":
		out = absCleanFrom(cwd, cli.OutPath)
	case strings.TrimSpace(fc.OutPath) != "":
		out = absCleanFrom(root, fc.OutPath)
	}
	if out == root {
		return EffectiveConfig{}, invalid("输出目录不能与导出目录相同：%q", out)
	}

	// 时间段与年份视为同一个设置：CLI 给出任一项时，配置文件中的两项都不再生效。
	span := strings.TrimSpace(fc.Timespan)
	year := fc.Year
	if cli.TimespanSet || cli.YearSet {
		span, year = "", 0
	}
	if cli.TimespanSet {
		span = strings.TrimSpace(cli.Timespan)
	}
	if cli.YearSet {
		year = cli.Year
	}
	if year < 0 {
		return EffectiveConfig{}, invalid("year 不能为负数：%d", year)
	}
	w, warning, err := window.Resolve(span, year, now)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeTimespanInvalid, Path: cfgPath, Err: err}
	}

	naming := domain.NamingUTC
	if cli.NamingSet {
		naming = domain.Naming(strings.ToLower(strings.TrimSpace(cli.Naming)))
	} else if strings.TrimSpace(fc.Naming) != "" {
		naming = domain.Naming(strings.ToLower(strings.TrimSpace(fc.Naming)))
	}
	if !naming.Valid() {
		return EffectiveConfig{}, invalid("naming 只能是 utc 或 local，实际是 %q", naming)
	}

	instant := domain.InstantAll
	if cli.ReactionInstantSet {
		instant = domain.InstantPolicy(strings.ToLower(strings.TrimSpace(cli.ReactionInstant)))
	} else if strings.TrimSpace(fc.ReactionInstant) != "" {
		instant = domain.InstantPolicy(strings.ToLower(strings.TrimSpace(fc.ReactionInstant)))
	}
	if !instant.Valid() {
		return EffectiveConfig{}, invalid("reaction_instant 只能是 all、only 或 exclude，实际是 %q", instant)
	}

	quality := fc.JPEGQuality
	if quality == 0 {
		quality = imgx.DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return EffectiveConfig{}, invalid("jpeg_quality 范围为 [1, 100]，实际是 %d", quality)
	}

	// 日志级别：--log-level > 配置 > --verbose(debug) > 默认 warn
	level := logging.DefaultLevel
	switch {
	case cli.LogLevelSet:
		level = cli.LogLevel
	case strings.TrimSpace(fc.LogLevel) != "":
		level = fc.LogLevel
	case cli.Verbose:
		level = "debug"
	}
	if _, ok := logging.ParseLevel(level); !ok {
		return EffectiveConfig{}, invalid("日志级别无效：%q", level)
	}
	level = strings.ToLower(strings.TrimSpace(level))

	tz := strings.TrimSpace(fc.DefaultTimezone)
	if cli.DefaultTZSet {
		tz = strings.TrimSpace(cli.DefaultTZ)
	}

	exiftoolPath := exiftool.DefaultPath
	if cli.ExiftoolPathSet && strings.TrimSpace(cli.ExiftoolPath) != "" {
		exiftoolPath = strings.TrimSpace(cli.ExiftoolPath)
	} else if strings.TrimSpace(fc.ExiftoolPath) != "" {
		exiftoolPath = strings.TrimSpace(fc.ExiftoolPath)
	}

	return EffectiveConfig{
		ExportRoot: root,
		OutPath:    out,
		ConfigFile: cfgPath,

		Window:        w,
		WindowWarning: warning,

		Memories:   boolOr(fc.Memories, true) && !cli.NoMemories,
		Reactions:  boolOr(fc.Reactions, true) && !cli.NoReactions,
		Composites: boolOr(fc.Composites, true) && !cli.NoComposites,

		DefaultTZ:    tz,
		ExiftoolPath: exiftoolPath,

		Naming:          naming,
		ReactionInstant: instant,

		DeepScan:    pick(cli.DeepScanSet, cli.DeepScan, fc.DeepScan, false),
		XMPSidecar:  pick(cli.XMPSidecarSet, cli.XMPSidecar, fc.XMPSidecar, false),
		Manifest:    boolOr(fc.Manifest, true) && !cli.NoManifest,
		JPEGQuality: quality,

		LogLevel: level,
		Verbose:  cli.Verbose,
	}, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func pick(cliSet, cliVal bool, file *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	return boolOr(file, def)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
