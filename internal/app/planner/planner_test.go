package planner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/cbvr/internal/domain"
)

func TestPlan_OutputNamesAndOrder(t *testing.T) {
	out := t.TempDir()
	files := []domain.SourceFile{
		{AbsPath: "/in/IMG_1.vr.jpg", RelPath: "IMG_1.vr.jpg", Base: "IMG_1.vr", Ext: ".jpg"},
	}

	plans := Plan(files, out, testOptions(false), Stamps{})
	if len(plans) != 1 || len(plans[0].Outputs) != 3 {
		t.Fatalf("计划数量不符合预期：%+v", plans)
	}
	want := []string{"IMG_1.vr_left.jpg", "IMG_1.vr_right.jpg", "IMG_1.vr_preview.jpg"}
	for i, o := range plans[0].Outputs {
		if got := filepath.Base(o.Path); got != want[i] {
			t.Fatalf("第 %d 个输出名=%q want=%q", i, got, want[i])
		}
		if filepath.Dir(o.Path) != filepath.Join(out, AssetsDirName) {
			t.Fatalf("输出应位于 assets 目录：%q", o.Path)
		}
		if !o.Need {
			t.Fatalf("输出不存在时必须生成：%+v", o)
		}
	}
}

func TestPlan_StemConflictDeterministic(t *testing.T) {
	files := []domain.SourceFile{
		{AbsPath: "/in/a.jpg", Base: "a", Ext: ".jpg"},
		{AbsPath: "/in/a.png", Base: "a", Ext: ".png"},
		{AbsPath: "/in/A.webp", Base: "A", Ext: ".webp"},
	}
	plans := Plan(files, t.TempDir(), testOptions(false), Stamps{})

	want := []string{"a_left.jpg", "a__2_left.jpg", "A__3_left.jpg"}
	for i, p := range plans {
		if got := filepath.Base(p.Outputs[0].Path); got != want[i] {
			t.Fatalf("第 %d 个计划：%q want=%q", i, got, want[i])
		}
	}
}

func TestPlanItem_ReuseFreshOutputs(t *testing.T) {
	assets := t.TempDir()
	srcMod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := domain.SourceFile{AbsPath: "/in/a.vr.jpg", Base: "a.vr", Ext: ".jpg", ModUnix: srcMod.Unix()}

	// left 比源新；right 比源旧；preview 不存在。
	writeAt(t, filepath.Join(assets, "a.vr_left.jpg"), srcMod.Add(time.Hour))
	writeAt(t, filepath.Join(assets, "a.vr_right.jpg"), srcMod.Add(-time.Hour))
	stamps := stampsFor(f, testOptions(false))

	p := PlanItem(f, assets, "a.vr", testOptions(false), stamps)
	need := map[string]bool{}
	for _, o := range p.Outputs {
		need[o.Role] = o.Need
	}
	if need[domain.RoleLeft] || !need[domain.RoleRight] || !need[domain.RolePreview] {
		t.Fatalf("复用判定不符合预期：%v", need)
	}

	forced := PlanItem(f, assets, "a.vr", testOptions(true), stamps)
	for _, o := range forced.Outputs {
		if !o.Need {
			t.Fatalf("force 时所有输出都必须重新生成：%+v", o)
		}
	}
}

func TestPlanItem_StampMismatchForcesRender(t *testing.T) {
	assets := t.TempDir()
	srcMod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := domain.SourceFile{AbsPath: "/in/a.vr.jpg", Base: "a.vr", Ext: ".jpg", ModUnix: srcMod.Unix()}
	for _, role := range []string{domain.RoleLeft, domain.RoleRight, domain.RolePreview} {
		writeAt(t, filepath.Join(assets, OutputName("a.vr", role, ".jpg")), srcMod.Add(time.Hour))
	}
	opts := testOptions(false)

	cases := []struct {
		name   string
		stamps Stamps
		mod    func(*Options)
		want   map[string]bool
	}{
		{
			name:   "matching stamps reuse all",
			stamps: stampsFor(f, opts),
			want:   map[string]bool{domain.RoleLeft: false, domain.RoleRight: false, domain.RolePreview: false},
		},
		{
			name:   "no stamps",
			stamps: Stamps{},
			want:   map[string]bool{domain.RoleLeft: true, domain.RoleRight: true, domain.RolePreview: true},
		},
		{
			name:   "preview size changed",
			stamps: stampsFor(f, opts),
			mod:    func(o *Options) { o.PreviewSize = 32 },
			want:   map[string]bool{domain.RoleLeft: false, domain.RoleRight: false, domain.RolePreview: true},
		},
		{
			name:   "stem now belongs to another source",
			stamps: stampsFor(domain.SourceFile{AbsPath: "/in/a.vr.png", Base: "a.vr"}, opts),
			want:   map[string]bool{domain.RoleLeft: true, domain.RoleRight: true, domain.RolePreview: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := opts
			if tc.mod != nil {
				tc.mod(&o)
			}
			p := PlanItem(f, assets, "a.vr", o, tc.stamps)
			for _, out := range p.Outputs {
				if out.Need != tc.want[out.Role] {
					t.Fatalf("%s：Need=%v want=%v", out.Role, out.Need, tc.want[out.Role])
				}
			}
		})
	}
}

func TestStamps_SaveLoad(t *testing.T) {
	assets := t.TempDir()
	if got := LoadStamps(assets); len(got) != 0 {
		t.Fatalf("没有记录文件时应返回空记录：%v", got)
	}

	f := domain.SourceFile{AbsPath: "/in/a.vr.jpg", Base: "a.vr"}
	p := PlanItem(f, assets, "a.vr", testOptions(false), Stamps{})
	st := Stamps{}
	for _, o := range p.Outputs {
		st.Set(o)
	}
	st.Forget(p.Outputs[0].Path)
	if err := st.Save(assets); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got := LoadStamps(assets)
	if len(got) != 2 {
		t.Fatalf("期望 2 条记录，实际 %v", got)
	}
	if got["a.vr_preview.jpg"].PreviewSize != 16 || got["a.vr_right.jpg"].PreviewSize != 0 {
		t.Fatalf("只有预览图记录 preview_size：%v", got)
	}

	if err := os.WriteFile(filepath.Join(assets, StampFileName), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	if got := LoadStamps(assets); len(got) != 0 {
		t.Fatalf("损坏的记录应视为空：%v", got)
	}
}

func testOptions(force bool) Options {
	return Options{Ext: ".jpg", Format: "jpeg", PreviewSize: 16, Force: force}
}

// stampsFor 返回 f 按 opts 生成全部输出后的记录。
func stampsFor(f domain.SourceFile, opts Options) Stamps {
	st := Stamps{}
	for _, o := range PlanItem(f, "", f.Base, opts, Stamps{}).Outputs {
		st.Set(o)
	}
	return st
}

func writeAt(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("Chtimes 失败：%v", err)
	}
}
