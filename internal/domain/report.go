package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	OutputStatusRendered = "rendered"
	OutputStatusReused   = "reused"
	OutputStatusFailed   = "failed"
)

const (
	ErrCodeNotStereoPhoto     = "not_stereo_photo"
	ErrCodeCorruptPayload     = "corrupt_payload"
	ErrCodeDecodeFailed       = "decode_failed"
	ErrCodeEncodeFailed       = "encode_failed"
	ErrCodeInvalidLayout      = "invalid_layout"
	ErrCodeTargetConflict     = "target_conflict"
	ErrCodeIOFailed           = "io_failed"
	ErrCodeAborted            = "aborted"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingInput = "config_missing_input"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`
	// Site 是本次写出的 index.html 路径；站点没有写出（fail-fast 中止、运行级错误）时为空。
	Site string `json:"site"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary  ReportSummary `json:"summary"`
	Items    []ItemResult  `json:"items"`
	Warnings []string      `json:"warnings"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	Source  string `json:"source"`
	Caption string `json:"caption"`
	// ImageID 是左眼元素 id（"#image1-left"）；失败或跳过的条目为空。
	ImageID string `json:"image_id"`
	Mime    string `json:"mime"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Outputs []OutputResult `json:"outputs"`
}

type OutputResult struct {
	Role   string `json:"role"`
	Path   string `json:"path"`
	Status string `json:"status"`
}

// OK 报告本次运行是否没有失败条目。
func (r RunReport) OK() bool { return r.Summary.Failed == 0 }

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 source 字典序；source=="" 的条目（配置错误等合成项）排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Source
		b := r.Items[j].Source
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
	if r.Warnings == nil {
		r.Warnings = []string{}
	}

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 集中约束输出的稳定性：nil 切片输出为 []，而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	if a.Warnings == nil {
		a.Warnings = []string{}
	}
	return json.Marshal(a)
}
