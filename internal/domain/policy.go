package domain

// Naming 决定输出文件名使用哪个时刻。
type Naming string

const (
	NamingUTC   Naming = "utc"
	NamingLocal Naming = "local"
)

func (n Naming) Valid() bool {
	return n == NamingUTC || n == NamingLocal
}

// InstantPolicy 决定 reaction 的 isInstant 标记如何参与过滤。
type InstantPolicy string

const (
	InstantAll     InstantPolicy = "all"
	InstantOnly    InstantPolicy = "only"
	InstantExclude InstantPolicy = "exclude"
)

func (p InstantPolicy) Valid() bool {
	return p == InstantAll || p == InstantOnly || p == InstantExclude
}

// Keep 判断一条记录是否通过该策略；缺失标记视为非 instant。
func (p InstantPolicy) Keep(r Record) bool {
	if r.Kind != KindReaction {
		return true
	}
	instant := r.Instant != nil && *r.Instant
	switch p {
	case InstantOnly:
		return instant
	case InstantExclude:
		return !instant
	default:
		return true
	}
}

// Roles 返回该类记录必须全部解析成功的图片角色（按输出顺序）。
func (k Kind) Roles() []Role {
	switch k {
	case KindMemory:
		return []Role{RoleFront, RoleBack}
	case KindReaction:
		return []Role{RoleMedia}
	default:
		return nil
	}
}
