package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // 注册 GIF 解码器
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器（部分设备导出的右眼图是 webp）

	"github.com/John-Robertt/cbvr/internal/domain"
)

// DefaultQuality 是输出 JPEG 的固定质量（0-100）。
const DefaultQuality = 90

const (
	KindDecode = domain.ErrCodeDecodeFailed
	KindEncode = domain.ErrCodeEncodeFailed
)

// Error 是图片编解码阶段的结构化错误。
//
// decode_failed 属于单文件错误；encode_failed 表示输出格式没有可用编码器，属于配置错误。
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s：%v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind 从 error 中提取 Kind；不是 *Error 时返回空串。
func Kind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Decode 解码 JPEG/PNG/GIF/WebP。
func Decode(b []byte) (image.Image, error) {
	if len(b) == 0 {
		return nil, &Error{Kind: KindDecode, Err: errors.New("图片数据为空")}
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	if bb := img.Bounds(); bb.Dx() <= 0 || bb.Dy() <= 0 {
		return nil, &Error{Kind: KindDecode, Err: errors.New("图片尺寸无效")}
	}
	return img, nil
}

// BlackCanvas 返回一张 w×h 的不透明黑色画布。
func BlackCanvas(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	return dst
}

// Equirectangular 把 src 居中放到 w × w/2 的黑色画布上。
//
// 这不是球面投影，只是把画幅强制为 2:1：
// - 偏移 x=(outW-inW)/2 恒为 0，y=(outH-inH)/2
// - y<0 时上下被裁掉，y>0 时上下留黑边；两种情况都保留，不做特殊处理
func Equirectangular(src image.Image) *image.RGBA {
	b := src.Bounds()
	inW, inH := b.Dx(), b.Dy()
	outW, outH := inW, inW/2

	dst := BlackCanvas(outW, outH)
	x := (outW - inW) / 2
	y := (outH - inH) / 2
	r := image.Rect(x, y, x+inW, y+inH)
	// draw 会把 r 裁剪到画布范围并同步调整源起点。
	xdraw.Draw(dst, r, src, b.Min, xdraw.Over)
	return dst
}

// Preview 取以水平中心为准、边长为原图高度的正方形，缩放到 size×size。
//
// 横图：裁掉左右；竖图：正方形超出原图的部分保持黑色。
func Preview(src image.Image, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("preview 尺寸必须为正数，实际 %d", size)
	}
	b := src.Bounds()
	side := b.Dy()
	x0 := b.Dx()/2 - side/2

	square := BlackCanvas(side, side)
	xdraw.Draw(square, square.Bounds(), src, image.Pt(b.Min.X+x0, b.Min.Y), xdraw.Over)

	return resize.Resize(uint(size), uint(size), square, resize.Bilinear), nil
}

// Encoder 把图片编码为某种输出格式。
type Encoder interface {
	Format() string
	Ext() string
	Encode(w io.Writer, img image.Image) error
}

type jpegEncoder struct{ quality int }

func (jpegEncoder) Format() string { return "jpeg" }
func (jpegEncoder) Ext() string    { return ".jpg" }
func (e jpegEncoder) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality})
}

type pngEncoder struct{}

func (pngEncoder) Format() string { return "png" }
func (pngEncoder) Ext() string    { return ".png" }
func (pngEncoder) Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

var encoders = map[string]func(quality int) Encoder{
	"jpeg": func(q int) Encoder { return jpegEncoder{quality: q} },
	"png":  func(int) Encoder { return pngEncoder{} },
}

// LookupEncoder 按格式名查找编码器；找不到时返回 encode_failed（整次运行的配置错误）。
func LookupEncoder(format string, quality int) (Encoder, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	if name == "jpg" {
		name = "jpeg"
	}
	mk, ok := encoders[name]
	if !ok {
		return nil, &Error{Kind: KindEncode, Err: fmt.Errorf("没有可用的 %q 编码器", format)}
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return mk(quality), nil
}

// Encode 用 enc 编码 img。
func Encode(img image.Image, enc Encoder) ([]byte, error) {
	if enc == nil {
		return nil, &Error{Kind: KindEncode, Err: errors.New("编码器为空")}
	}
	var out bytes.Buffer
	if err := enc.Encode(&out, img); err != nil {
		return nil, &Error{Kind: KindEncode, Err: err}
	}
	return out.Bytes(), nil
}

// EncodeEquirectangular 生成 2:1 画布并编码。
func EncodeEquirectangular(img image.Image, enc Encoder) ([]byte, error) {
	if w := img.Bounds().Dx(); w < 2 {
		return nil, &Error{Kind: KindDecode, Err: fmt.Errorf("图片宽度 %d 过小，无法生成 2:1 画布", w)}
	}
	return Encode(Equirectangular(img), enc)
}

// EncodePreview 生成 size×size 预览图并编码。
func EncodePreview(img image.Image, size int, enc Encoder) ([]byte, error) {
	p, err := Preview(img, size)
	if err != nil {
		return nil, err
	}
	return Encode(p, enc)
}

// EquirectangularFromBytes 解码 src，生成 2:1 画布并编码。
func EquirectangularFromBytes(src []byte, enc Encoder) ([]byte, error) {
	img, err := Decode(src)
	if err != nil {
		return nil, err
	}
	return EncodeEquirectangular(img, enc)
}
