package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/infra/fsx"
)

// AssetsDirName 是输出站点中图片所在的子目录。
const AssetsDirName = "assets"

// StampFileName 记录 assets 下每个输出的生成参数（位于 assets 目录内）。
const StampFileName = ".cbvr-render.json"

// roles 是每张照片输出的固定顺序。
var roles = []string{domain.RoleLeft, domain.RoleRight, domain.RolePreview}

// Options 是影响输出内容的参数。
type Options struct {
	Ext         string
	Format      string
	PreviewSize int
	Force       bool
}

// Stamps 按输出文件名记录上次生成时的参数。
type Stamps map[string]domain.RenderStamp

// LoadStamps 读取 assetsDir 下的生成记录；不存在或损坏时返回空记录（所有输出都会重新生成）。
func LoadStamps(assetsDir string) Stamps {
	st := Stamps{}
	b, err := os.ReadFile(filepath.Join(assetsDir, StampFileName))
	if err != nil {
		return st
	}
	if err := json.Unmarshal(b, &st); err != nil || st == nil {
		return Stamps{}
	}
	return st
}

// Save 原子写入生成记录。
func (s Stamps) Save(assetsDir string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(assetsDir, StampFileName), append(b, '\n'))
}

// Set 记录 o 已按 o.Stamp 生成（或复用）。
func (s Stamps) Set(o domain.OutputPlan) { s[filepath.Base(o.Path)] = o.Stamp }

// Forget 删除 path 的记录：下次运行必须重新生成。
func (s Stamps) Forget(path string) { delete(s, filepath.Base(path)) }

// Plan 为每个输入文件生成确定性的输出计划（不做任何写入）。
//
// 规则：
// - 输出名为 <stem>_<role><ext>，stem 是源文件名去掉扩展名（"IMG_1.vr"）
// - 不同源文件 stem 相同（a.jpg / a.png）时，后者分配 <stem>__2、__3 ...
// - 复用条件：输出不早于源文件修改时间，且记录的源文件/格式/预览尺寸与本次一致；force 时全部重新生成
func Plan(files []domain.SourceFile, outDir string, opts Options, stamps Stamps) []domain.ItemPlan {
	assets := filepath.Join(outDir, AssetsDirName)
	used := make(map[string]struct{}, len(files))

	plans := make([]domain.ItemPlan, 0, len(files))
	for _, f := range files {
		stem := allocStem(f.Base, used)
		used[stem] = struct{}{}
		plans = append(plans, PlanItem(f, assets, stem, opts, stamps))
	}
	return plans
}

// PlanItem 规划单个文件的三个输出。
func PlanItem(f domain.SourceFile, assetsDir, stem string, opts Options, stamps Stamps) domain.ItemPlan {
	srcMod := time.Unix(f.ModUnix, 0)
	outs := make([]domain.OutputPlan, 0, len(roles))
	for _, role := range roles {
		name := OutputName(stem, role, opts.Ext)
		p := filepath.Join(assetsDir, name)
		want := domain.RenderStamp{Source: f.AbsPath, Format: opts.Format}
		if role == domain.RolePreview {
			want.PreviewSize = opts.PreviewSize
		}
		prev, ok := stamps[name]
		outs = append(outs, domain.OutputPlan{
			Role:  role,
			Path:  p,
			Need:  opts.Force || !ok || prev != want || !fsx.IsFresh(p, srcMod),
			Stamp: want,
		})
	}
	return domain.ItemPlan{Source: f, Outputs: outs}
}

// OutputName 返回输出文件名，例如 "IMG_1.vr_left.jpg"。
func OutputName(stem, role, ext string) string {
	return stem + "_" + role + ext
}

func allocStem(stem string, used map[string]struct{}) string {
	// 文件系统可能大小写不敏感：按小写判重。
	key := func(s string) string { return strings.ToLower(s) }
	taken := func(s string) bool {
		for u := range used {
			if key(u) == key(s) {
				return true
			}
		}
		return false
	}
	if !taken(stem) {
		return stem
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d", stem, n)
		if !taken(cand) {
			return cand
		}
	}
}
