package xmp

import "strings"

// PropertySource 是“按 key 查属性”的最小能力接口。
// 一个文件可能有多个 XMP 目录（标准包 + 扩展包），上层按固定优先级依次查询。
type PropertySource interface {
	Property(key string) (string, bool)
}

// Directory 是一个 XMP packet 展开后的属性表。
//
// key 形如 "GImage:Data"、"dc:title[1]"（数组元素 1-based）。
type Directory struct {
	props map[string]string
}

var _ PropertySource = (*Directory)(nil)

func (d *Directory) Property(key string) (string, bool) {
	if d == nil || d.props == nil {
		return "", false
	}
	v, ok := d.props[key]
	return v, ok
}

func (d *Directory) set(key, value string) {
	if d.props == nil {
		d.props = map[string]string{}
	}
	d.props[key] = value
}

// LookupNonBlank 按 sources 的顺序查询 key，返回第一个非空白的值：某个目录里 key 存在却为空时继续查下一个目录。
func LookupNonBlank(sources []PropertySource, key string) (string, bool) {
	for _, s := range sources {
		if s == nil {
			continue
		}
		if v, ok := s.Property(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// Sources 把目录列表转换为 PropertySource 列表（保持文件内顺序）。
func Sources(dirs []*Directory) []PropertySource {
	out := make([]PropertySource, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, d)
	}
	return out
}
