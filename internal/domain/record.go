package domain

import (
	"math"
	"strings"
	"time"
)

// Kind 区分记录集合。
type Kind string

const (
	KindMemory   Kind = "memory"
	KindReaction Kind = "reaction"
)

// Dir 返回该类记录在输出根目录下的子目录名。
func (k Kind) Dir() string {
	switch k {
	case KindMemory:
		return "memories"
	case KindReaction:
		return "reactions"
	default:
		return string(k)
	}
}

// CompositeDir 是合成图输出子目录。
const CompositeDir = "composites"

// Role 标识一条记录内的某张图片。
type Role string

const (
	RoleFront     Role = "front"
	RoleBack      Role = "back"
	RoleMedia     Role = "media"
	RoleComposite Role = "composite"
)

// Suffix 返回输出文件名中的角色后缀；reaction 只有一张图，不带后缀。
func (r Role) Suffix() string {
	if r == RoleMedia || r == "" {
		return ""
	}
	return "_" + string(r)
}

// Coords 是 WGS84 经纬度（十进制度）。
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid 判断经纬度是否在合法范围内（NaN/Inf 视为非法）。
func (c Coords) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// ImageRef 是导出 JSON 中声明的图片引用（原样保存，格式/位置不确定）。
type ImageRef struct {
	Role Role
	Path string
}

// Record 是一次导出事件（memory 或 reaction）。
//
// 约束：
// - 解析后只读
// - TakenAtRaw 保留原始字符串；解析失败的记录在过滤阶段被丢弃并计数
// - Index 是在输入中的原始位置，用于稳定排序
type Record struct {
	Kind       Kind
	Index      int
	TakenAtRaw string
	Images     []ImageRef
	Location   *Coords
	// Instant 仅部分版本的 reaction 导出带有该标记；nil 表示缺失。
	Instant *bool
}

// Image 返回指定角色的引用。
func (r Record) Image(role Role) (ImageRef, bool) {
	for _, im := range r.Images {
		if im.Role == role {
			return im, true
		}
	}
	return ImageRef{}, false
}

// ParseTakenAt 把原始时间戳解析为 UTC。
// 接受 RFC3339（含小数秒），以及缺少时区后缀的 ISO 形式（视为 UTC）。
func ParseTakenAt(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
