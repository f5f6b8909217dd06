package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/m-mizutani/goerr/v2"
)

// ErrMissingInput 表示某个集合的输入文件缺失或无法解析；只影响该集合。
var ErrMissingInput = errors.New("输入文件缺失或无法解析")

// InputFile 返回集合对应的输入文件名。
func InputFile(kind domain.Kind) string {
	switch kind {
	case domain.KindMemory:
		return "memories.json"
	case domain.KindReaction:
		return "realmojis.json"
	default:
		return string(kind) + ".json"
	}
}

type imageJSON struct {
	Path string `json:"path"`
}

type locationJSON struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// 字段先保留为原始 JSON，逐字段宽松解码：单条记录的类型错误只影响该条。
type memoryJSON struct {
	FrontImage json.RawMessage `json:"frontImage"`
	BackImage  json.RawMessage `json:"backImage"`
	TakenTime  json.RawMessage `json:"takenTime"`
	Location   json.RawMessage `json:"location"`
}

type realmojiJSON struct {
	Media     json.RawMessage `json:"media"`
	PostedAt  json.RawMessage `json:"postedAt"`
	IsInstant json.RawMessage `json:"isInstant"`
}

// Load 读取 root 下指定集合的输入文件并转成 Record（只读取消费到的字段）。
func Load(root string, kind domain.Kind) ([]domain.Record, error) {
	path := filepath.Join(root, InputFile(kind))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(ErrMissingInput, "读取输入文件失败",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}

	switch kind {
	case domain.KindMemory:
		return decodeMemories(path, b)
	case domain.KindReaction:
		return decodeReactions(path, b)
	default:
		return nil, goerr.New("未知记录类型", goerr.V("kind", kind))
	}
}

func decodeMemories(path string, b []byte) ([]domain.Record, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil, malformed(path, err)
	}
	out := make([]domain.Record, 0, len(elems))
	for i, e := range elems {
		var m memoryJSON
		_ = json.Unmarshal(e, &m) // 非对象元素：字段全空，过滤阶段按 bad_timestamp 计数
		out = append(out, domain.Record{
			Kind:       domain.KindMemory,
			Index:      i,
			TakenAtRaw: rawText(m.TakenTime),
			Images: []domain.ImageRef{
				{Role: domain.RoleFront, Path: imagePath(m.FrontImage)},
				{Role: domain.RoleBack, Path: imagePath(m.BackImage)},
			},
			Location: coords(m.Location),
		})
	}
	return out, nil
}

func decodeReactions(path string, b []byte) ([]domain.Record, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil, malformed(path, err)
	}
	out := make([]domain.Record, 0, len(elems))
	for i, e := range elems {
		var r realmojiJSON
		_ = json.Unmarshal(e, &r)
		out = append(out, domain.Record{
			Kind:       domain.KindReaction,
			Index:      i,
			TakenAtRaw: rawText(r.PostedAt),
			Images:     []domain.ImageRef{{Role: domain.RoleMedia, Path: imagePath(r.Media)}},
			Instant:    instant(r.IsInstant),
		})
	}
	return out, nil
}

// rawText 返回 JSON 字符串的内容；其他类型保留原文（之后解析时间戳时失败）。
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func imagePath(raw json.RawMessage) string {
	var im imageJSON
	if len(raw) == 0 || json.Unmarshal(raw, &im) != nil {
		return ""
	}
	return im.Path
}

func instant(raw json.RawMessage) *bool {
	var v *bool
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

// coords 仅在经纬度都存在且为数值时返回坐标；范围校验留给时区换算。
func coords(raw json.RawMessage) *domain.Coords {
	var l locationJSON
	if len(raw) == 0 || json.Unmarshal(raw, &l) != nil {
		return nil
	}
	if l.Latitude == nil || l.Longitude == nil {
		return nil
	}
	return &domain.Coords{Lat: *l.Latitude, Lon: *l.Longitude}
}

func malformed(path string, err error) error {
	return goerr.Wrap(ErrMissingInput, "输入文件格式错误",
		goerr.V("path", path), goerr.V("cause", err.Error()))
}
