package domain

import "strings"

// ManifestEntry 是 images.json 的一条记录（字段名是浏览器端脚本依赖的契约）。
type ManifestEntry struct {
	LeftImageID    string `json:"leftImageId"`
	RightImageID   string `json:"rightImageId"`
	PreviewImageID string `json:"previewImageId,omitempty"`
	Caption        string `json:"caption"`
}

// StartEntry 返回欢迎页条目：左右眼都指向 #start，没有预览图。
func StartEntry(welcome string) ManifestEntry {
	welcome = strings.TrimSpace(welcome)
	if welcome == "" {
		welcome = DefaultWelcome
	}
	return ManifestEntry{
		LeftImageID:  StartID,
		RightImageID: StartID,
		Caption:      welcome,
	}
}

// RawID 去掉元素引用前缀 '#'，得到 HTML 元素的 id 属性值。
func RawID(ref string) string {
	return strings.TrimPrefix(ref, "#")
}
