package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Index 是导出根目录下所有图片文件的 basename 索引（深度扫描用）。
//
// 约束：
// - 构造后只读
// - 同名文件的候选按 “Photos/ 下优先，其次相对路径字典序” 稳定排序
type Index struct {
	byName map[string][]string
}

// ScanImages 扫描 root 下的图片文件，并应用目录排除规则。
//
// 规则（硬约束）：
//   - excludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）；
//     调用方通常传入输出目录，避免把上次导出的副本当作源文件
//   - 隐藏目录（以 '.' 开头）整体跳过
//
// 注意：扫描阶段只看目录项，不读文件内容。
func ScanImages(root string, excludeDirs []string) (*Index, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	type hit struct{ rel, abs string }
	hits := make(map[string][]hit, 256)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !isImageExt(strings.ToLower(filepath.Ext(name))) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hits[name] = append(hits[name], hit{rel: filepath.ToSlash(rel), abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	idx := &Index{byName: make(map[string][]string, len(hits))}
	for name, hs := range hits {
		// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
		sort.Slice(hs, func(i, j int) bool {
			pi, pj := underPhotos(hs[i].rel), underPhotos(hs[j].rel)
			if pi != pj {
				return pi
			}
			return hs[i].rel < hs[j].rel
		})
		paths := make([]string, 0, len(hs))
		for _, h := range hs {
			paths = append(paths, h.abs)
		}
		idx.byName[name] = paths
	}
	return idx, nil
}

// Lookup 返回 basename 对应的候选绝对路径（按优先级排序）；未命中返回 nil。
func (x *Index) Lookup(base string) []string {
	if x == nil {
		return nil
	}
	return x.byName[base]
}

// Len 返回索引中不同 basename 的数量。
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.byName)
}

func underPhotos(rel string) bool {
	return rel == "Photos" || strings.HasPrefix(rel, "Photos/")
}

func isImageExt(ext string) bool {
	switch ext {
	case ".webp", ".jpg", ".jpeg", ".png", ".heic":
		return true
	default:
		return false
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
