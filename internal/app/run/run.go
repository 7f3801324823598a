package run

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/cbvr/internal/app/planner"
	"github.com/John-Robertt/cbvr/internal/cardboard"
	"github.com/John-Robertt/cbvr/internal/config"
	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/infra/fsx"
	"github.com/John-Robertt/cbvr/internal/infra/imgx"
	"github.com/John-Robertt/cbvr/internal/layout"
	"github.com/John-Robertt/cbvr/internal/scan"
	"github.com/John-Robertt/cbvr/internal/site"
)

// MaxStablePhotos 以上的照片数量在部分浏览器中可能不稳定（纹理内存）。
const MaxStablePhotos = 20

// Execute 执行一次构建，并返回对外稳定的 RunReport。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 流程：校验（编码器/布局参数）→ 扫描 → 规划 → 逐张串行处理 → 布局 → 写站点。
//
// 约束：
// - 照片严格按枚举顺序处理；id 的 N 取插入时集合长度（起始条目占 0），失败的照片不占号
// - 默认 fail-fast：第一张失败后停止，剩余照片记为 skipped(aborted)，不写站点
// - keep_going：记录失败并继续，站点只包含成功的照片
// - encode_failed / invalid_layout 是运行级错误：在处理任何照片之前失败
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Input:     eff.Input,
		Output:    eff.Output,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 32),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	enc, err := imgx.LookupEncoder(eff.Format, imgx.DefaultQuality)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeEncodeFailed, err.Error()))
		return finish()
	}
	if eff.PreviewSize <= 0 {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("preview_size 必须为正数，实际 %d", eff.PreviewSize)))
		return finish()
	}
	// 用 Total=2 探测其余参数；真实数量在处理结束后才确定。
	if err := layoutParams(eff.Carousel, 2).Validate(); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInvalidLayout, err.Error()))
		return finish()
	}

	scanStarted := time.Now()
	sr, err := scan.ScanPhotos(eff.Input, eff.InputIsFile)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files": len(sr.Files),
			"title": sr.TitlePath != "",
		}, time.Since(scanStarted))
	}

	assetsDir := filepath.Join(eff.Output, planner.AssetsDirName)
	if err := fsx.EnsureDir(assetsDir); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(errorCode(err), fmt.Sprintf("创建输出目录失败：%v", err)))
		return finish()
	}

	planStarted := time.Now()
	stamps := planner.LoadStamps(assetsDir)
	plans := planner.Plan(sr.Files, eff.Output, planner.Options{
		Ext:         enc.Ext(),
		Format:      enc.Format(),
		PreviewSize: eff.PreviewSize,
		Force:       eff.Force,
	}, stamps)
	if obs != nil {
		var render, reuse, stale int
		for _, p := range plans {
			if p.NeedAny() {
				stale++
			}
			for _, o := range p.Outputs {
				if o.Need {
					render++
				} else {
					reuse++
				}
			}
		}
		obs.OnPhaseDone("plan", map[string]any{
			"items":  len(plans),
			"stale":  stale,
			"render": render,
			"reuse":  reuse,
		}, time.Since(planStarted))
		obs.OnPhaseDone("exec", map[string]any{
			"total_items": len(plans),
		}, 0)
	}

	photos := make([]domain.StereoPhoto, 0, len(plans))
	aborted := ""
	for i, p := range plans {
		oneStarted := time.Now()

		var res domain.ItemResult
		switch {
		case aborted != "":
			res = skippedItem(p, aborted)
		case ctx.Err() != nil:
			aborted = fmt.Sprintf("运行已取消：%v", ctx.Err())
			res = skippedItem(p, aborted)
		default:
			// N = 插入时集合长度；起始条目占 0。
			ph, r := processOne(p, enc, eff.PreviewSize, len(photos)+1)
			res = r
			recordStamps(stamps, p, res)
			if res.Status == domain.StatusProcessed {
				photos = append(photos, ph)
			} else if !eff.KeepGoing {
				aborted = fmt.Sprintf("%s 处理失败，已停止（可使用 --keep-going 跳过失败的照片）", p.Source.RelPath)
			}
		}

		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, len(plans), p.Source.RelPath, res, time.Since(oneStarted))
		}
	}

	if err := stamps.Save(assetsDir); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(errorCode(err), fmt.Sprintf("写入生成记录失败：%v", err)))
		return finish()
	}
	if aborted != "" {
		return finish()
	}

	if len(photos) > MaxStablePhotos {
		rr.Warnings = append(rr.Warnings, fmt.Sprintf(
			"照片数量较多（%d > %d），部分浏览器可能不稳定；建议分批生成", len(photos), MaxStablePhotos))
	}

	layoutStarted := time.Now()
	slots, err := placePhotos(eff.Carousel, len(photos))
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInvalidLayout, err.Error()))
		return finish()
	}
	if obs != nil {
		fields := map[string]any{"items": len(slots)}
		if len(slots) > 0 {
			fields["edge"] = slots[0].EdgeSize
		}
		obs.OnPhaseDone("layout", fields, time.Since(layoutStarted))
	}

	siteStarted := time.Now()
	page := site.Page{
		OutDir:  eff.Output,
		Placard: sr.Welcome,
		Carousel: site.Carousel{
			Height:    eff.Carousel.Height,
			OrbRadius: eff.Carousel.OrbRadius,
		},
		Items: make([]site.Item, 0, len(photos)),
	}
	for i, ph := range photos {
		page.Items = append(page.Items, site.Item{Photo: ph, Slot: slots[i]})
	}
	written, err := site.Write(eff.Output, page, site.Manifest(sr.Welcome, photos))
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(errorCode(err), fmt.Sprintf("写入站点失败：%v", err)))
		return finish()
	}
	rr.Site = filepath.Join(eff.Output, site.IndexFileName)
	if obs != nil {
		obs.OnPhaseDone("site", map[string]any{
			"files":  len(written),
			"photos": len(photos),
		}, time.Since(siteStarted))
	}

	return finish()
}

// processOne 提取并合成一张照片的三个输出；失败时返回 Status=failed 的结果。
func processOne(p domain.ItemPlan, enc imgx.Encoder, previewSize, n int) (domain.StereoPhoto, domain.ItemResult) {
	item := domain.ItemResult{
		Source:  p.Source.RelPath,
		Status:  domain.StatusProcessed, // 失败时覆盖
		Outputs: make([]domain.OutputResult, 0, len(p.Outputs)),
	}
	fail := func(err error) (domain.StereoPhoto, domain.ItemResult) {
		item.Status = domain.StatusFailed
		item.ErrorCode = errorCode(err)
		item.ErrorMsg = err.Error()
		item.ImageID = ""
		return domain.StereoPhoto{}, item
	}

	cp, err := cardboard.Extract(p.Source.AbsPath)
	if err != nil {
		return fail(err)
	}
	item.Caption = cp.Caption
	item.Mime = cp.Mime

	ph := domain.StereoPhoto{
		SourcePath:      p.Source.AbsPath,
		RightEyePayload: cp.Payload,
		Caption:         cp.Caption,
		Mime:            cp.Mime,
		N:               n,
	}

	// 左眼与预览图都来自源文件本身：只在需要时解码一次。
	var left *lazyImage
	if need(p, domain.RoleLeft) || need(p, domain.RolePreview) {
		left = &lazyImage{path: p.Source.AbsPath}
	}

	for _, o := range p.Outputs {
		if !o.Need {
			item.Outputs = append(item.Outputs, domain.OutputResult{Role: o.Role, Path: o.Path, Status: domain.OutputStatusReused})
			setPath(&ph, o.Role, o.Path)
			continue
		}

		var data []byte
		switch o.Role {
		case domain.RoleLeft:
			img, e := left.get()
			if e != nil {
				err = e
				break
			}
			data, err = imgx.EncodeEquirectangular(img, enc)
		case domain.RoleRight:
			data, err = imgx.EquirectangularFromBytes(ph.RightEyePayload, enc)
		case domain.RolePreview:
			img, e := left.get()
			if e != nil {
				err = e
				break
			}
			data, err = imgx.EncodePreview(img, previewSize, enc)
		default:
			err = fmt.Errorf("未知输出角色 %q", o.Role)
		}
		if err == nil {
			err = fsx.WriteFileAtomic(o.Path, data)
		}
		if err != nil {
			item.Outputs = append(item.Outputs, domain.OutputResult{Role: o.Role, Path: o.Path, Status: domain.OutputStatusFailed})
			return fail(fmt.Errorf("%s：%w", o.Role, err))
		}

		item.Outputs = append(item.Outputs, domain.OutputResult{Role: o.Role, Path: o.Path, Status: domain.OutputStatusRendered})
		setPath(&ph, o.Role, o.Path)
	}

	item.ImageID = ph.LeftImageID()
	return ph, item
}

// placePhotos 计算 total 张照片的位置。
// 布局要求至少 2 个位置：只有 1 张时按 Total=2 取第 0 个位置（预留区右侧边缘）。
func placePhotos(c config.Carousel, total int) ([]layout.Slot, error) {
	if total == 0 {
		return nil, nil
	}
	if total == 1 {
		s, err := layout.Compute(layoutParams(c, 2), 0)
		if err != nil {
			return nil, err
		}
		return []layout.Slot{s}, nil
	}
	return layout.All(layoutParams(c, total))
}

func layoutParams(c config.Carousel, total int) layout.Params {
	return layout.Params{
		Total:            total,
		Radius:           c.Radius,
		ReservedAngleDeg: c.ReservedAngle,
		ImageFraction:    c.ImageFraction,
		MaxSize:          c.MaxImageSize,
	}
}

// lazyImage 在第一次使用时读取并解码源文件。
type lazyImage struct {
	path   string
	loaded bool
	img    image.Image
	err    error
}

func (l *lazyImage) get() (image.Image, error) {
	if !l.loaded {
		l.loaded = true
		b, err := os.ReadFile(l.path)
		if err != nil {
			l.err = err
		} else {
			l.img, l.err = imgx.Decode(b)
		}
	}
	return l.img, l.err
}

// recordStamps 按处理结果更新生成记录：成功写出或复用的输出记下参数，失败的输出删除记录。
func recordStamps(st planner.Stamps, p domain.ItemPlan, res domain.ItemResult) {
	status := make(map[string]string, len(res.Outputs))
	for _, o := range res.Outputs {
		status[o.Path] = o.Status
	}
	for _, o := range p.Outputs {
		switch status[o.Path] {
		case domain.OutputStatusRendered, domain.OutputStatusReused:
			st.Set(o)
		case domain.OutputStatusFailed:
			st.Forget(o.Path)
		}
	}
}

func need(p domain.ItemPlan, role string) bool {
	o, ok := p.Output(role)
	return ok && o.Need
}

func setPath(ph *domain.StereoPhoto, role, path string) {
	switch role {
	case domain.RoleLeft:
		ph.LeftImagePath = path
	case domain.RoleRight:
		ph.RightImagePath = path
	case domain.RolePreview:
		ph.PreviewImagePath = path
	}
}

// errorCode 把各层的结构化错误映射为 report 的 error_code。
func errorCode(err error) string {
	if k := cardboard.Kind(err); k != "" {
		return k
	}
	if k := imgx.Kind(err); k != "" {
		return k
	}
	var le *layout.InvalidInputError
	if errors.As(err, &le) {
		return domain.ErrCodeInvalidLayout
	}
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeIOFailed
}

func skippedItem(p domain.ItemPlan, reason string) domain.ItemResult {
	return domain.ItemResult{
		Source:    p.Source.RelPath,
		Status:    domain.StatusSkipped,
		ErrorCode: domain.ErrCodeAborted,
		ErrorMsg:  reason,
		Outputs:   []domain.OutputResult{},
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Source:    "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Outputs:   []domain.OutputResult{},
	}
}
