package tzlocal

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/ringsaturn/tzf"
)

// NewGeoLookup 加载内置的时区多边形数据（耗时约数百毫秒，每次运行只加载一次）。
func NewGeoLookup() (Lookup, error) {
	f, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, goerr.Wrap(err, "加载时区数据失败")
	}
	return f, nil
}
