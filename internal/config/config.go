package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/cbvr/internal/domain"
)

// FileName 是配置文件名。
const FileName = "cbvr.json"

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 cbvr.json。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingInput 表示无参运行但配置文件缺少 input 字段。
	ErrCodeMissingInput = domain.ErrCodeConfigMissingInput
)

const (
	DefaultOutputDir   = "webvr"
	DefaultPreviewSize = 1024
	DefaultFormat      = "jpeg"

	DefaultCarouselRadius        = 2.0
	DefaultCarouselReservedAngle = 90.0
	DefaultCarouselHeight        = 1.6
	DefaultCarouselOrbRadius     = 0.1
	DefaultCarouselImageFraction = 0.85
	DefaultCarouselMaxImageSize  = 1.0
)

// CLIArgs 是 CLI 暴露的入口，保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --keep-going=false 必须能覆盖 config.keep_going=true。
type CLIArgs struct {
	Input  string
	Output string

	KeepGoing    bool
	KeepGoingSet bool

	Force    bool
	ForceSet bool
}

// FileConfig 对应 cbvr.json 的解析结构。
type FileConfig struct {
	Input       string          `json:"input"`
	Output      string          `json:"output"`
	PreviewSize int             `json:"preview_size"`
	Format      string          `json:"format"`
	KeepGoing   *bool           `json:"keep_going"`
	Force       *bool           `json:"force"`
	Carousel    *CarouselConfig `json:"carousel"`
}

// CarouselConfig 是环形轮播的几何参数（单位：米 / 度）。
// 指针字段用于区分“未填写”和“显式填 0”。
type CarouselConfig struct {
	Radius        *float64 `json:"radius"`
	ReservedAngle *float64 `json:"reserved_angle"`
	Height        *float64 `json:"height"`
	OrbRadius     *float64 `json:"orb_radius"`
	ImageFraction *float64 `json:"image_fraction"`
	MaxImageSize  *float64 `json:"max_image_size"`
}

// Carousel 是合并默认值之后的轮播参数。
type Carousel struct {
	Radius        float64
	ReservedAngle float64
	Height        float64
	OrbRadius     float64
	ImageFraction float64
	MaxImageSize  float64
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Input 是 clean + absolute 的输入目录或单个文件。
	Input string
	// InputIsFile 为 true 时只处理 Input 这一个文件。
	InputIsFile bool
	Output      string

	PreviewSize int
	Format      string
	KeepGoing   bool
	Force       bool

	Carousel Carousel
}

// DefaultCarousel 返回内置的轮播参数。
func DefaultCarousel() Carousel {
	return Carousel{
		Radius:        DefaultCarouselRadius,
		ReservedAngle: DefaultCarouselReservedAngle,
		Height:        DefaultCarouselHeight,
		OrbRadius:     DefaultCarouselOrbRadius,
		ImageFraction: DefaultCarouselImageFraction,
		MaxImageSize:  DefaultCarouselMaxImageSize,
	}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 input", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 input：尝试读取 <input 所在目录>/cbvr.json（可选）；input 是文件时取其父目录
// 2) CLI 未提供 input：必须读取 <cwd>/cbvr.json（必选），且其中必须包含 input
//
// 覆盖优先级：
// - input / output：CLI > config > 默认（output 默认 <输入目录>/webvr）
// - keep_going / force：CLI 显式指定 > config > 默认 false
// - 其他字段：仅由 config 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Input) != "" {
		input := absCleanFrom(cwdAbs, cli.Input)
		isFile, err := statInput(input)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: input, Err: err}
		}
		dir := input
		if isFile {
			dir = filepath.Dir(input)
		}
		cfgPath := filepath.Join(dir, FileName)
		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		// 配置文件里的 output 相对于配置文件所在目录。
		return merge(input, isFile, dir, cli, fc, cwdAbs, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Input) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: cfgPath}
	}

	input := absCleanFrom(cwdAbs, fc.Input)
	isFile, err := statInput(input)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(input, isFile, cwdAbs, cli, fc, cwdAbs, cfgPath)
}

func merge(input string, isFile bool, cfgDir string, cli CLIArgs, fc FileConfig, cwdAbs, cfgPath string) (EffectiveConfig, error) {
	inputDir := input
	if isFile {
		inputDir = filepath.Dir(input)
	}

	output := filepath.Join(inputDir, DefaultOutputDir)
	if strings.TrimSpace(cli.Output) != "" {
		output = absCleanFrom(cwdAbs, cli.Output)
	} else if strings.TrimSpace(fc.Output) != "" {
		output = absCleanFrom(cfgDir, fc.Output)
	}
	if output == input {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("output 不能与 input 相同：%q", output)}
	}

	previewSize := fc.PreviewSize
	if previewSize == 0 {
		previewSize = DefaultPreviewSize
	}
	if previewSize < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("preview_size 必须为正数，实际 %d", previewSize)}
	}

	format := strings.ToLower(strings.TrimSpace(fc.Format))
	if format == "" {
		format = DefaultFormat
	}

	keepGoing := false
	if cli.KeepGoingSet {
		keepGoing = cli.KeepGoing
	} else if fc.KeepGoing != nil {
		keepGoing = *fc.KeepGoing
	}

	force := false
	if cli.ForceSet {
		force = cli.Force
	} else if fc.Force != nil {
		force = *fc.Force
	}

	return EffectiveConfig{
		Input:       input,
		InputIsFile: isFile,
		Output:      output,
		PreviewSize: previewSize,
		Format:      format,
		KeepGoing:   keepGoing,
		Force:       force,
		Carousel:    mergeCarousel(fc.Carousel),
	}, nil
}

// mergeCarousel 只做默认值填充；取值范围由 layout 校验（invalid_layout 是运行级错误）。
func mergeCarousel(cc *CarouselConfig) Carousel {
	c := DefaultCarousel()
	if cc == nil {
		return c
	}
	pick := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	pick(&c.Radius, cc.Radius)
	pick(&c.ReservedAngle, cc.ReservedAngle)
	pick(&c.Height, cc.Height)
	pick(&c.OrbRadius, cc.OrbRadius)
	pick(&c.ImageFraction, cc.ImageFraction)
	pick(&c.MaxImageSize, cc.MaxImageSize)
	return c
}

// statInput 报告 input 是否是普通文件；不存在或既不是文件也不是目录时返回错误。
func statInput(p string) (bool, error) {
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("input 不存在：%q", p)
		}
		return false, err
	}
	switch {
	case st.IsDir():
		return false, nil
	case st.Mode().IsRegular():
		return true, nil
	default:
		return false, fmt.Errorf("input 既不是文件也不是目录：%q", p)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
