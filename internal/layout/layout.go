package layout

import (
	"fmt"
	"math"
)

// snapEpsilon 以内的坐标直接写成 0，避免 1e-16 之类的值进入生成的 HTML。
const snapEpsilon = 0.001

// Params 是一次布局的输入。
type Params struct {
	Total            int
	Radius           float64
	ReservedAngleDeg float64
	ImageFraction    float64
	MaxSize          float64
}

// Slot 是第 Index 个位置的计算结果。
type Slot struct {
	Index    int     `json:"index"`
	AngleDeg float64 `json:"angle_deg"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	YawDeg   float64 `json:"yaw_deg"`
	EdgeSize float64 `json:"edge_size"`
}

// InvalidInputError 表示布局参数不在定义域内（total<2、半径非正等）。
type InvalidInputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid_layout：%s=%v %s", e.Field, e.Value, e.Reason)
}

// Validate 检查 p 是否满足布局前置条件。
func (p Params) Validate() error {
	switch {
	case p.Total < 2:
		return &InvalidInputError{Field: "total", Value: p.Total, Reason: "必须 ≥ 2"}
	case !(p.Radius > 0) || math.IsInf(p.Radius, 0):
		return &InvalidInputError{Field: "radius", Value: p.Radius, Reason: "必须为正数"}
	case !(p.ReservedAngleDeg >= 0 && p.ReservedAngleDeg < 360):
		return &InvalidInputError{Field: "reserved_angle", Value: p.ReservedAngleDeg, Reason: "必须在 [0,360) 内"}
	case !(p.ImageFraction > 0 && p.ImageFraction <= 1):
		return &InvalidInputError{Field: "image_fraction", Value: p.ImageFraction, Reason: "必须在 (0,1] 内"}
	case !(p.MaxSize > 0):
		return &InvalidInputError{Field: "max_image_size", Value: p.MaxSize, Reason: "必须为正数"}
	}
	return nil
}

// UsableAngle 返回可放置照片的弧度（角度制）。
func (p Params) UsableAngle() float64 { return 360 - p.ReservedAngleDeg }

// StepAngle 返回相邻两张照片的角度间隔。
func (p Params) StepAngle() float64 { return p.UsableAngle() / float64(p.Total-1) }

// EdgeSize 返回每张照片的边长：按可用弧长均分再乘 ImageFraction，不超过 MaxSize。
func (p Params) EdgeSize() float64 {
	circumference := 2 * math.Pi * p.Radius * (p.UsableAngle() / 360)
	share := circumference / float64(p.Total)
	return math.Min(p.MaxSize, share*p.ImageFraction)
}

// Compute 计算第 index 个位置。
//
// 角度从 -Z 轴起顺时针计量（与 A-Frame 场景一致）；预留角以 0° 为中心对称，留给正前方的导航区。
func Compute(p Params, index int) (Slot, error) {
	if err := p.Validate(); err != nil {
		return Slot{}, err
	}
	if index < 0 || index >= p.Total {
		return Slot{}, &InvalidInputError{Field: "index", Value: index, Reason: fmt.Sprintf("必须在 [0,%d) 内", p.Total)}
	}

	angle := float64(index)*p.StepAngle() + p.ReservedAngleDeg/2
	// 换算为从 +X 轴逆时针的角度。
	adjusted := (90 - angle) * math.Pi / 180

	return Slot{
		Index:    index,
		AngleDeg: angle,
		X:        snap(p.Radius * math.Cos(adjusted)),
		Z:        snap(-p.Radius * math.Sin(adjusted)),
		YawDeg:   -angle,
		EdgeSize: p.EdgeSize(),
	}, nil
}

// All 按顺序计算全部 Total 个位置。
func All(p Params) ([]Slot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]Slot, 0, p.Total)
	for i := 0; i < p.Total; i++ {
		s, err := Compute(p, i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// NavOrbY 返回照片下方导航球的高度：照片中心高度减去半个边长，再减去球半径。
func NavOrbY(height, edge, orbRadius float64) float64 {
	return height - edge/2 - orbRadius
}

func snap(v float64) float64 {
	if math.Abs(v) < snapEpsilon {
		return 0
	}
	return v
}
