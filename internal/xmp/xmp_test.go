package xmp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/berealx/internal/domain"
)

func TestEncode_WellFormedWithGPS(t *testing.T) {
	taken := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	b, err := Encode(Meta{Taken: taken, Location: &domain.Coords{Lat: 40.5, Lon: -74.25}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	mustWellFormed(t, b)

	s := string(b)
	for _, want := range []string{
		`exif:DateTimeOriginal="2024-06-01T08:00:00-04:00"`,
		`exif:GPSLatitude="40,30.000000N"`,
		`exif:GPSLongitude="74,15.000000W"`,
		`<?xpacket end="w"?>`,
	} {
		if !bytes.Contains(b, []byte(want)) {
			t.Fatalf("缺少 %q：\n%s", want, s)
		}
	}
}

func TestEncode_NoLocation(t *testing.T) {
	b, err := Encode(Meta{Taken: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	mustWellFormed(t, b)
	if bytes.Contains(b, []byte("GPS")) {
		t.Fatalf("无坐标时不应写 GPS：\n%s", b)
	}
	if !bytes.Contains(b, []byte(`2024-01-01T00:00:00+00:00`)) {
		t.Fatalf("UTC 偏移应写为 +00:00：\n%s", b)
	}
}

func TestWrite_SidecarNextToFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "memories", "2024-06-01_12-00-00_front.webp")

	sc, err := Write(p, Meta{Taken: time.Now()})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if sc != p+".xmp" {
		t.Fatalf("sidecar 路径不符合预期：%q", sc)
	}
	if _, err := os.Stat(sc); err != nil {
		t.Fatalf("sidecar 未写入：%v", err)
	}
}

func mustWellFormed(t *testing.T, b []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(b))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("XML 不合法：%v\n%s", err, b)
		}
	}
}
