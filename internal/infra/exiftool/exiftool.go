// Package exiftool 通过外部 exiftool 进程把拍摄时间与 GPS 写入图片副本。
package exiftool

import (
	"bytes"
	"context"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultPath 是未配置时使用的可执行文件名（走 PATH 查找）。
const DefaultPath = "exiftool"

// Tags 是一次写入请求。Taken 必须已换算为当地时间（其 Location 决定偏移）。
type Tags struct {
	Taken    time.Time
	Location *domain.Coords
}

// Args 构造 exiftool 参数（纯函数，便于测试）。
//
// 写入：
// - EXIF:DateTimeOriginal：不带时区的当地时间
// - EXIF:OffsetTimeOriginal：UTC 偏移
// - 有坐标时：GPSLatitude/Ref、GPSLongitude/Ref（数值取绝对值，方向用 Ref 表达）
func Args(path string, tags Tags) []string {
	args := []string{
		"-P",
		"-overwrite_original",
		"-EXIF:DateTimeOriginal=" + tags.Taken.Format("2006:01:02 15:04:05"),
		"-EXIF:OffsetTimeOriginal=" + tags.Taken.Format("-07:00"),
	}
	if c := tags.Location; c != nil && c.Valid() {
		latRef, lonRef := "N", "E"
		if c.Lat < 0 {
			latRef = "S"
		}
		if c.Lon < 0 {
			lonRef = "W"
		}
		args = append(args,
			"-EXIF:GPSLatitude="+formatDeg(c.Lat),
			"-EXIF:GPSLatitudeRef="+latRef,
			"-EXIF:GPSLongitude="+formatDeg(c.Lon),
			"-EXIF:GPSLongitudeRef="+lonRef,
		)
	}
	// 以 '-' 开头的相对路径会被当作选项。
	if strings.HasPrefix(path, "-") {
		path = "./" + path
	}
	return append(args, path)
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
}

// Tool 每次请求启动一个 exiftool 进程；ctx 取消时子进程随之终止。
type Tool struct {
	Path string
}

func New(path string) *Tool {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Tool{Path: path}
}

// Check 确认可执行文件存在（只做查找，不启动进程）。
func (t *Tool) Check() error {
	if _, err := exec.LookPath(t.Path); err != nil {
		return goerr.Wrap(err, "找不到 exiftool", goerr.V("path", t.Path))
	}
	return nil
}

// Embed 把 tags 写入 path；失败时错误中带上 exiftool 的输出。
func (t *Tool) Embed(ctx context.Context, path string, tags Tags) error {
	cmd := exec.CommandContext(ctx, t.Path, Args(path, tags)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return goerr.Wrap(err, "exiftool 执行失败",
			goerr.V("path", path),
			goerr.V("output", strings.TrimSpace(out.String())))
	}
	return nil
}
