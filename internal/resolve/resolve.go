// Package resolve 把导出 JSON 里声明的图片引用映射到磁盘上的真实文件。
//
// BeReal 的导出布局随版本变化（Photos/post、Photos/bereal、Photos/realmoji……），
// 引用本身也可能是绝对路径、相对路径或裸文件名。这里只使用引用的 basename，
// 按一组有序的目录约定依次探测，命中即返回。
package resolve

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Convention 是一种历史导出布局：Hint 是引用中可能出现的目录片段，Dir 是相对导出根的目录。
type Convention struct {
	Name string
	Hint string
	Dir  string
}

// DefaultConventions 按优先级排列（当前布局在前，旧布局在后）。
var DefaultConventions = []Convention{
	{Name: "post", Hint: "/post/", Dir: "Photos/post"},
	{Name: "bereal", Hint: "/bereal/", Dir: "Photos/bereal"},
	{Name: "realmoji", Hint: "/realmoji/", Dir: "Photos/realmoji"},
	{Name: "realmoji-legacy", Hint: "/realmoji/", Dir: "Photos/Realmoji"},
}

// Index 是可选的兜底策略（深度扫描得到的 basename 索引）。
type Index interface {
	Lookup(base string) []string
}

// Resolution 是一次成功解析的结果。
type Resolution struct {
	Path string
	// Convention 是命中的约定名；深度扫描命中时为 "index"。
	Convention string
	// Hinted 表示命中的约定来自引用中的目录提示。
	Hinted bool
}

// Resolver 只做查询：不创建、不修改任何文件。
type Resolver struct {
	Root        string
	Conventions []Convention
	Index       Index
}

func New(root string, idx Index) *Resolver {
	return &Resolver{Root: root, Conventions: DefaultConventions, Index: idx}
}

type candidate struct {
	path       string
	convention string
	hinted     bool
}

// Candidates 返回按探测顺序排列、去重后的候选绝对路径（不访问文件系统，索引除外）。
func (r *Resolver) Candidates(ref string) []string {
	cs := r.candidates(ref)
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.path)
	}
	return out
}

// Resolve 返回第一个存在的普通文件；都不存在时 ok=false（不是错误）。
func (r *Resolver) Resolve(ref string) (Resolution, bool) {
	for _, c := range r.candidates(ref) {
		fi, err := os.Stat(c.path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		return Resolution{Path: c.path, Convention: c.convention, Hinted: c.hinted}, true
	}
	return Resolution{}, false
}

func (r *Resolver) candidates(ref string) []candidate {
	base := Basename(ref)
	if base == "" {
		return nil
	}

	convs := r.Conventions
	if convs == nil {
		convs = DefaultConventions
	}

	seen := make(map[string]struct{}, len(convs)+2)
	var out []candidate
	add := func(p, name string, hinted bool) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, candidate{path: p, convention: name, hinted: hinted})
	}

	// 1) 引用里带提示目录的约定优先。
	norm := "/" + strings.ToLower(strings.ReplaceAll(ref, "\\", "/"))
	for _, c := range convs {
		if c.Hint != "" && strings.Contains(norm, strings.ToLower(c.Hint)) {
			add(r.join(c.Dir, base), c.Name, true)
		}
	}
	// 2) 所有已知约定，固定顺序。
	for _, c := range convs {
		add(r.join(c.Dir, base), c.Name, false)
	}
	// 3) 深度扫描索引。
	if r.Index != nil {
		for _, p := range r.Index.Lookup(base) {
			add(p, "index", false)
		}
	}
	return out
}

func (r *Resolver) join(dir, base string) string {
	return filepath.Join(r.Root, filepath.FromSlash(dir), base)
}

// Basename 返回引用的最后一个路径片段；同时接受 '/' 与 '\' 分隔符。
func Basename(ref string) string {
	s := strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	s = strings.TrimRight(s, "/")
	if s == "" {
		return ""
	}
	b := path.Base(s)
	if b == "." || b == "/" || b == ".." {
		return ""
	}
	return b
}
