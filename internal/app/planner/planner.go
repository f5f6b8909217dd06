package planner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
)

// BaseLayout 是输出文件名中的时间部分。
const BaseLayout = "2006-01-02_15-04-05"

// DefaultExt 用于没有扩展名的源文件（BeReal 导出默认是 webp）。
const DefaultExt = ".webp"

// CompositeExt 是合成图的固定扩展名（合成结果压平为 JPEG）。
const CompositeExt = ".jpg"

// Planner 为同一集合的记录生成确定性的输出路径（只规划，不写入）。
//
// 同一秒内的多条记录会得到相同的时间前缀；按处理顺序依次分配 "__2"、"__3" 后缀，
// 因为处理顺序是稳定排序后的顺序，重复运行得到相同的名字。
type Planner struct {
	outRoot string
	naming  domain.Naming
	used    map[string]struct{}
}

func New(outRoot string, naming domain.Naming) *Planner {
	if !naming.Valid() {
		naming = domain.NamingUTC
	}
	return &Planner{outRoot: outRoot, naming: naming, used: map[string]struct{}{}}
}

// Input 是规划单条记录所需的全部输入。
type Input struct {
	Kind     domain.Kind
	TakenUTC time.Time
	// TakenLocal 仅在 naming=local 时参与命名。
	TakenLocal time.Time
	// Sources 是已解析的源文件绝对路径（必须覆盖 Kind.Roles() 的全部角色）。
	Sources   map[domain.Role]string
	Location  *domain.Coords
	Composite bool
}

// Plan 生成单条记录的执行计划。
func (p *Planner) Plan(in Input) (domain.RecordPlan, error) {
	roles := in.Kind.Roles()
	if len(roles) == 0 {
		return domain.RecordPlan{}, fmt.Errorf("未知记录类型：%q", in.Kind)
	}

	t := in.TakenUTC.UTC()
	if p.naming == domain.NamingLocal && !in.TakenLocal.IsZero() {
		t = in.TakenLocal
	}
	base := p.allocBase(in.Kind, t.Format(BaseLayout))
	dir := filepath.Join(p.outRoot, in.Kind.Dir())

	plan := domain.RecordPlan{Kind: in.Kind, TakenAt: t, Base: base}
	for _, role := range roles {
		src, ok := in.Sources[role]
		if !ok || src == "" {
			return domain.RecordPlan{}, fmt.Errorf("缺少 %s 源文件", role)
		}
		plan.Copies = append(plan.Copies, domain.CopyPlan{
			Role:   role,
			SrcAbs: src,
			DstAbs: filepath.Join(dir, base+role.Suffix()+extOf(src)),
		})
	}

	if in.Composite && in.Kind == domain.KindMemory {
		plan.Composite = &domain.CompositePlan{
			FrontAbs: plan.Copies[0].DstAbs,
			BackAbs:  plan.Copies[1].DstAbs,
			DstAbs:   filepath.Join(p.outRoot, domain.CompositeDir, base+domain.RoleComposite.Suffix()+CompositeExt),
			TakenAt:  in.TakenUTC.UTC(),
			Location: in.Location,
		}
	}
	return plan, nil
}

func (p *Planner) allocBase(kind domain.Kind, base string) string {
	key := string(kind) + "/" + base
	if _, ok := p.used[key]; !ok {
		p.used[key] = struct{}{}
		return base
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d", base, n)
		if _, ok := p.used[string(kind)+"/"+cand]; !ok {
			p.used[string(kind)+"/"+cand] = struct{}{}
			return cand
		}
	}
}

// extOf 保留源文件扩展名（含大小写）；没有扩展名时回退到 .webp。
func extOf(src string) string {
	if ext := filepath.Ext(src); ext != "" && ext != "." {
		return ext
	}
	return DefaultExt
}
