// Package xmp 生成 XMP sidecar（<file>.xmp），供不支持内嵌 EXIF 的格式或缺少 exiftool 时使用。
package xmp

import (
	"encoding/xml"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/m-mizutani/goerr/v2"
)

const (
	nsX         = "adobe:ns:meta/"
	nsRDF       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsEXIF      = "http://ns.adobe.com/exif/1.0/"
	nsXMP       = "http://ns.adobe.com/xap/1.0/"
	nsPhotoshop = "http://ns.adobe.com/photoshop/1.0/"
)

// Meta 是写入 sidecar 的内容。Taken 为当地时间（带偏移）。
type Meta struct {
	Taken    time.Time
	Location *domain.Coords
}

type xmpmeta struct {
	XMLName xml.Name `xml:"x:xmpmeta"`
	NSX     string   `xml:"xmlns:x,attr"`
	RDF     rdf      `xml:"rdf:RDF"`
}

type rdf struct {
	NSRDF string      `xml:"xmlns:rdf,attr"`
	Desc  description `xml:"rdf:Description"`
}

type description struct {
	About       string `xml:"rdf:about,attr"`
	NSEXIF      string `xml:"xmlns:exif,attr"`
	NSXMP       string `xml:"xmlns:xmp,attr"`
	NSPhotoshop string `xml:"xmlns:photoshop,attr"`

	DateTimeOriginal string `xml:"exif:DateTimeOriginal,attr"`
	CreateDate       string `xml:"xmp:CreateDate,attr"`
	DateCreated      string `xml:"photoshop:DateCreated,attr"`

	GPSVersionID string `xml:"exif:GPSVersionID,attr,omitempty"`
	GPSLatitude  string `xml:"exif:GPSLatitude,attr,omitempty"`
	GPSLongitude string `xml:"exif:GPSLongitude,attr,omitempty"`
}

// Encode 生成完整的 XMP 包（含 xpacket 包装）。
//
// 规则：
// - 时间统一为 ISO8601 带偏移（如 2024-06-01T08:00:00-04:00）
// - 坐标非法或缺失时不写 GPS 字段
func Encode(m Meta) ([]byte, error) {
	ts := m.Taken.Format("2006-01-02T15:04:05-07:00")
	d := description{
		About:       "",
		NSEXIF:      nsEXIF,
		NSXMP:       nsXMP,
		NSPhotoshop: nsPhotoshop,

		DateTimeOriginal: ts,
		CreateDate:       ts,
		DateCreated:      ts,
	}
	if c := m.Location; c != nil && c.Valid() {
		d.GPSVersionID = "2.2.0.0"
		d.GPSLatitude = gpsCoord(c.Lat, "N", "S")
		d.GPSLongitude = gpsCoord(c.Lon, "E", "W")
	}

	b, err := xml.MarshalIndent(xmpmeta{NSX: nsX, RDF: rdf{NSRDF: nsRDF, Desc: d}}, "", " ")
	if err != nil {
		return nil, err
	}

	const (
		begin = `<?xpacket begin="` + "\uFEFF" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>` + "\n"
		end   = "\n" + `<?xpacket end="w"?>` + "\n"
	)
	out := make([]byte, 0, len(begin)+len(b)+len(end))
	out = append(out, begin...)
	out = append(out, b...)
	out = append(out, end...)
	return out, nil
}

// gpsCoord 按 XMP 规范输出 "DDD,MM.mmmmmmR"。
func gpsCoord(v float64, pos, neg string) string {
	ref := pos
	if v < 0 {
		ref = neg
	}
	v = math.Abs(v)
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	return fmt.Sprintf("%d,%.6f%s", int(deg), minutes, ref)
}

// SidecarPath 返回 path 对应的 sidecar 路径（保留原扩展名，如 a.webp.xmp）。
func SidecarPath(path string) string {
	return path + ".xmp"
}

// Write 原子写入 path 对应的 sidecar（已存在则覆盖）。
func Write(path string, m Meta) (string, error) {
	b, err := Encode(m)
	if err != nil {
		return "", goerr.Wrap(err, "生成 XMP 失败", goerr.V("path", path))
	}
	sc := SidecarPath(path)
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(sc), filepath.Base(sc), b); err != nil {
		return "", goerr.Wrap(err, "写入 XMP 失败", goerr.V("path", sc))
	}
	return sc, nil
}
