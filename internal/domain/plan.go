package domain

// RenderStamp 记录生成某个输出时的参数；与本次参数不一致的旧输出不能复用。
type RenderStamp struct {
	Source      string `json:"source"`
	Format      string `json:"format"`
	PreviewSize int    `json:"preview_size,omitempty"`
}

// OutputPlan 规划一个输出图片文件。
type OutputPlan struct {
	Role string
	Path string // 绝对路径
	// Need=false 表示已有输出比源文件新且参数一致，可直接复用。
	Need bool
	// Stamp 是本次生成该输出所用的参数。
	Stamp RenderStamp
}

// ItemPlan 是对某张照片的最小执行计划。
type ItemPlan struct {
	Source  SourceFile
	Outputs []OutputPlan // 固定顺序：left, right, preview
}

// NeedAny 报告是否至少有一个输出需要重新生成。
func (p ItemPlan) NeedAny() bool {
	for _, o := range p.Outputs {
		if o.Need {
			return true
		}
	}
	return false
}

// Output 按角色查找输出计划。
func (p ItemPlan) Output(role string) (OutputPlan, bool) {
	for _, o := range p.Outputs {
		if o.Role == role {
			return o, true
		}
	}
	return OutputPlan{}, false
}
