package cardboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/xmp"
)

// XMP 属性 key（metadata-extractor 风格：数组元素 1-based）。
const (
	KeyRightEyeData = "GImage:Data"
	KeyRightEyeMime = "GImage:Mime"
	KeyTitle        = "dc:title[1]"
	KeyDescription  = "dc:description[1]"
)

// Cardboard Camera 默认文件名形如 IMG_xxx.vr.jpg；去掉扩展名后还需去掉 ".vr"。
const vrSuffix = ".vr"

const (
	KindNotStereoPhoto = domain.ErrCodeNotStereoPhoto
	KindCorruptPayload = domain.ErrCodeCorruptPayload
)

// Error 是提取阶段的结构化错误；Kind 直接对应 report 的 error_code。
type Error struct {
	Kind string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotStereoPhoto:
		if e.Err != nil {
			return fmt.Sprintf("%s：%q 不包含 cardboard 元数据（%s）：%v", e.Kind, e.Path, KeyRightEyeData, e.Err)
		}
		return fmt.Sprintf("%s：%q 不包含 cardboard 元数据（%s）", e.Kind, e.Path, KeyRightEyeData)
	case KindCorruptPayload:
		return fmt.Sprintf("%s：%q 的右眼图片数据无法 base64 解码：%v", e.Kind, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s：%q：%v", e.Kind, e.Path, e.Err)
	}
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

// Photo 是从一个源文件中提取出的右眼图片与标题。
type Photo struct {
	Payload []byte
	Caption string
	// Mime 来自 GImage:Mime（可能为空），只用于展示。
	Mime string
}

// Extract 读取 path 的 XMP 目录，提取右眼图片与标题。
//
// 规则：
// - 右眼数据是唯一的有效性判据：所有 XMP 目录里都取不到非空白的 GImage:Data，或 XMP 损坏 => not_stereo_photo
// - 文件本身读取失败不属于 Kind 错误（上层映射为 io_failed）
// - 标题：dc:title → dc:description → 文件名（去扩展名，再去掉末尾 ".vr"），永不失败
// - base64 先补齐 '=' 再解码；补齐后仍失败 => corrupt_payload
func Extract(path string) (Photo, error) {
	dirs, err := xmp.ReadFile(path)
	if err != nil {
		if errors.Is(err, xmp.ErrMalformed) {
			return Photo{}, &Error{Kind: KindNotStereoPhoto, Path: path, Err: err}
		}
		// 打不开/读不了的文件不是“没有元数据”：原样上抛，由上层记为 I/O 错误。
		return Photo{}, fmt.Errorf("读取 %q 失败：%w", path, err)
	}
	return FromSources(path, xmp.Sources(dirs))
}

// FromSources 与 Extract 相同，但直接使用已读取的属性源（便于测试与复用）。
func FromSources(path string, sources []xmp.PropertySource) (Photo, error) {
	raw, ok := xmp.LookupNonBlank(sources, KeyRightEyeData)
	if !ok {
		return Photo{}, &Error{Kind: KindNotStereoPhoto, Path: path}
	}

	payload, err := DecodePayload(raw)
	if err != nil {
		return Photo{}, &Error{Kind: KindCorruptPayload, Path: path, Err: err}
	}

	mime, _ := xmp.LookupNonBlank(sources, KeyRightEyeMime)
	return Photo{
		Payload: payload,
		Caption: ResolveCaption(path, sources),
		Mime:    strings.TrimSpace(mime),
	}, nil
}

// ResolveCaption 按 title → description → 文件名 的顺序取第一个非空白值（已 trim）。
func ResolveCaption(path string, sources []xmp.PropertySource) string {
	for _, key := range []string{KeyTitle, KeyDescription} {
		if v, ok := xmp.LookupNonBlank(sources, key); ok {
			return strings.TrimSpace(v)
		}
	}
	return CaptionFromFilename(path)
}

// CaptionFromFilename 返回去掉扩展名与末尾 ".vr"（区分大小写）的文件名。
func CaptionFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.TrimSuffix(name, vrSuffix)
	if strings.TrimSpace(name) == "" {
		// 文件名只剩 ".vr" 之类的极端情况：退回完整文件名，保证标题非空。
		return filepath.Base(path)
	}
	return name
}

// RepairBase64 为长度不是 4 的倍数的 base64 串补齐 '='。
// 部分设备写出的数据省略了末尾填充。
func RepairBase64(s string) string {
	if mod := len(s) % 4; mod != 0 {
		s += strings.Repeat("=", 4-mod)
	}
	return s
}

// DecodePayload 先补齐填充，再按标准字母表解码。
func DecodePayload(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(RepairBase64(s))
}
