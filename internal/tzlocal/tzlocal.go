// Package tzlocal 把 UTC 拍摄时刻换算为拍摄者当地时间。
//
// 回退链（确定性，且永不返回错误）：
//  1. 无坐标：配置了默认时区则用默认时区（fallback-default），否则 UTC（none）
//  2. 有坐标：按经纬度查时区，查到且能加载则换算（geo）
//  3. 查询失败（非法坐标、查不到、时区名无法加载、查询 panic）：同 1
package tzlocal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/logging"
)

// Source 标记本地时间来自哪一步。
type Source string

const (
	SourceGeo             Source = "geo"
	SourceFallbackDefault Source = "fallback-default"
	SourceNone            Source = "none"
)

// Lookup 是经纬度到 IANA 时区名的查询；查不到返回空串。
// 注意参数顺序：经度在前。
type Lookup interface {
	GetTimezoneName(lng, lat float64) string
}

// Localized 是一次换算的结果（值对象）。
type Localized struct {
	UTC    time.Time
	Local  time.Time
	Zone   string
	Source Source
}

// Offset 返回形如 "+02:00" 的 UTC 偏移。
func (l Localized) Offset() string {
	return l.Local.Format("-07:00")
}

// Localizer 构造后配置只读，可被多个记录共享（时区加载缓存自带锁）。
type Localizer struct {
	lookup   Lookup
	fallback *time.Location

	mu    sync.Mutex
	cache map[string]*time.Location
}

// New 构造 Localizer。
//
// defaultZone 为空表示未配置；无法加载时视为未配置，并只在这里告警一次。
func New(ctx context.Context, lookup Lookup, defaultZone string) *Localizer {
	l := &Localizer{lookup: lookup, cache: map[string]*time.Location{}}

	name := strings.TrimSpace(defaultZone)
	if name == "" {
		return l
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logging.From(ctx).Warn("默认时区无效，已忽略", "zone", name, "error", err)
		return l
	}
	l.fallback = loc
	return l
}

// DefaultZone 返回生效的默认时区名；未配置时为空串。
func (l *Localizer) DefaultZone() string {
	if l == nil || l.fallback == nil {
		return ""
	}
	return l.fallback.String()
}

// Localize 换算单个时刻；loc 为 nil 表示记录没有坐标。
func (l *Localizer) Localize(t time.Time, loc *domain.Coords) Localized {
	utc := t.UTC()

	if l != nil && loc != nil {
		if zone, ok := l.geo(*loc); ok {
			return Localized{UTC: utc, Local: utc.In(zone), Zone: zone.String(), Source: SourceGeo}
		}
	}
	if l != nil && l.fallback != nil {
		return Localized{UTC: utc, Local: utc.In(l.fallback), Zone: l.fallback.String(), Source: SourceFallbackDefault}
	}
	return Localized{UTC: utc, Local: utc, Zone: "UTC", Source: SourceNone}
}

func (l *Localizer) geo(c domain.Coords) (*time.Location, bool) {
	if l.lookup == nil || !c.Valid() {
		return nil, false
	}
	name := l.safeLookup(c)
	if name == "" {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if loc, ok := l.cache[name]; ok {
		return loc, loc != nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		l.cache[name] = nil
		return nil, false
	}
	l.cache[name] = loc
	return loc, true
}

func (l *Localizer) safeLookup(c domain.Coords) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = ""
		}
	}()
	return strings.TrimSpace(l.lookup.GetTimezoneName(c.Lon, c.Lat))
}
