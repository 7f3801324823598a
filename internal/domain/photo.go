package domain

import "fmt"

// 图片角色；同时作为输出文件名与元素 id 的后缀。
const (
	RoleLeft    = "left"
	RoleRight   = "right"
	RolePreview = "preview"
)

// StartID 是欢迎页（起始位置）的元素 id。
const StartID = "#start"

// DefaultWelcome 是没有 title.txt 时的欢迎文字。
const DefaultWelcome = "Welcome"

// StereoPhoto 是一张输入照片处理过程中的派生状态。
//
// 生命周期：提取阶段创建（RightEyePayload/Caption），
// 合成阶段每成功一步填一个 *ImagePath，之后只读。
type StereoPhoto struct {
	SourcePath string

	// RightEyePayload 为 nil 表示不是立体照片。
	RightEyePayload []byte
	Caption         string
	Mime            string

	LeftImagePath    string
	RightImagePath   string
	PreviewImagePath string

	// N 是写入集合时集合的长度（起始条目占 0）。
	N int
}

// ImageID 返回第 n 张照片某个角色的元素 id（带 '#'），例如 "#image1-left"。
func ImageID(n int, role string) string {
	return fmt.Sprintf("#image%d-%s", n, role)
}

// LeftImageID 等返回 StereoPhoto 对应的元素 id。
func (p StereoPhoto) LeftImageID() string    { return ImageID(p.N, RoleLeft) }
func (p StereoPhoto) RightImageID() string   { return ImageID(p.N, RoleRight) }
func (p StereoPhoto) PreviewImageID() string { return ImageID(p.N, RolePreview) }

// Entry 返回 images.json 中对应的记录。
func (p StereoPhoto) Entry() ManifestEntry {
	return ManifestEntry{
		LeftImageID:    p.LeftImageID(),
		RightImageID:   p.RightImageID(),
		PreviewImageID: p.PreviewImageID(),
		Caption:        p.Caption,
	}
}
