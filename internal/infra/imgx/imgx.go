package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器（输入不一定总是 webp）
	"os"
	"path/filepath"

	"github.com/John-Robertt/berealx/internal/infra/fsx"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
	_ "golang.org/x/image/webp" // BeReal 导出的主要格式
)

// DefaultJPEGQuality 在体积与质量之间比较均衡。
const DefaultJPEGQuality = 95

// kappa 是用三次贝塞尔逼近四分之一圆的控制点系数。
const kappa = 0.5522847498

// FrontSize 计算前置图缩放后的尺寸：宽为后置图宽的 1/4，高按原比例（均至少为 1）。
func FrontSize(backW, frontW, frontH int) (w, h int) {
	w = backW / 4
	if w < 1 {
		w = 1
	}
	if frontW <= 0 {
		return w, 1
	}
	h = frontH * w / frontW
	if h < 1 {
		h = 1
	}
	return w, h
}

// CornerRadius 返回圆角半径：min(w, h) / 8。
func CornerRadius(w, h int) int {
	m := w
	if h < m {
		m = h
	}
	return m / 8
}

// RoundedMask 生成 w×h 的圆角矩形 alpha 遮罩（抗锯齿）。
func RoundedMask(w, h, r int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if w <= 0 || h <= 0 {
		return mask
	}

	fw, fh, fr := float32(w), float32(h), float32(r)
	k := float32(kappa) * fr

	z := vector.NewRasterizer(w, h)
	z.MoveTo(fr, 0)
	z.LineTo(fw-fr, 0)
	z.CubeTo(fw-fr+k, 0, fw, fr-k, fw, fr)
	z.LineTo(fw, fh-fr)
	z.CubeTo(fw, fh-fr+k, fw-fr+k, fh, fw-fr, fh)
	z.LineTo(fr, fh)
	z.CubeTo(fr-k, fh, 0, fh-fr+k, 0, fh-fr)
	z.LineTo(0, fr)
	z.CubeTo(0, fr-k, fr-k, 0, fr, 0)
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// Composite 把缩放并切圆角的 front 叠加到 back 左上角 (0,0)，结果不透明（透明区域压黑）。
func Composite(front, back image.Image) (*image.RGBA, error) {
	bb := back.Bounds()
	fb := front.Bounds()
	if bb.Dx() <= 0 || bb.Dy() <= 0 || fb.Dx() <= 0 || fb.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	dst := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), back, bb.Min, xdraw.Over)

	w, h := FrontSize(bb.Dx(), fb.Dx(), fb.Dy())
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(small, small.Bounds(), front, fb, xdraw.Src, nil)

	mask := RoundedMask(w, h, CornerRadius(w, h))
	xdraw.DrawMask(dst, small.Bounds(), small, image.Point{}, mask, image.Point{}, xdraw.Over)
	return dst, nil
}

// ComposeFiles 读取两张图片，合成后以 JPEG 原子写入 out（已存在则覆盖）。
func ComposeFiles(frontPath, backPath, out string, quality int) error {
	front, err := DecodeFile(frontPath)
	if err != nil {
		return err
	}
	back, err := DecodeFile(backPath)
	if err != nil {
		return err
	}

	img, err := Composite(front, back)
	if err != nil {
		return goerr.Wrap(err, "合成失败", goerr.V("front", frontPath), goerr.V("back", backPath))
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return goerr.Wrap(err, "JPEG 编码失败", goerr.V("out", out))
	}
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(out), filepath.Base(out), buf.Bytes()); err != nil {
		return goerr.Wrap(err, "写入合成图失败", goerr.V("out", out))
	}
	return nil
}

// DecodeFile 解码 WebP/JPEG/PNG；JPEG 会按 EXIF Orientation 摆正。
func DecodeFile(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "读取图片失败", goerr.V("path", path))
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, goerr.Wrap(err, "解码图片失败", goerr.V("path", path))
	}
	if format == "jpeg" {
		img = Orient(img, jpegOrientation(b))
	}
	return img, nil
}

func jpegOrientation(b []byte) int {
	x, err := exif.Decode(bytes.NewReader(b))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// Orient 按 EXIF Orientation（1..8）变换图片；其他取值原样返回。
func Orient(img image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return img
	}
	b := img.Bounds()
	W, H := b.Dx(), b.Dy()

	dw, dh := W, H
	if o >= 5 {
		dw, dh = H, W
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var sx, sy int
			switch o {
			case 2:
				sx, sy = W-1-x, y
			case 3:
				sx, sy = W-1-x, H-1-y
			case 4:
				sx, sy = x, H-1-y
			case 5:
				sx, sy = y, x
			case 6:
				sx, sy = y, H-1-x
			case 7:
				sx, sy = W-1-y, H-1-x
			case 8:
				sx, sy = W-1-y, x
			}
			dst.Set(x, y, img.At(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return dst
}
