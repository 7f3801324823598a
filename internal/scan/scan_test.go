package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanPhotos_TopLevelSorted(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "b.vr.jpg"), "x")
	touch(t, filepath.Join(root, "a.vr.jpg"), "x")
	touch(t, filepath.Join(root, "notes.txt"), "x") // 不按扩展名过滤
	touch(t, filepath.Join(root, ".DS_Store"), "x")
	touch(t, filepath.Join(root, "cbvr.json"), "{}")
	touch(t, filepath.Join(root, "webvr", "assets", "a.vr_left.jpg"), "x") // 不递归

	got, err := ScanPhotos(root, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var rels []string
	for _, f := range got.Files {
		rels = append(rels, f.RelPath)
	}
	want := []string{"a.vr.jpg", "b.vr.jpg", "notes.txt"}
	if len(rels) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, rels)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Fatalf("期望 %v，实际 %v", want, rels)
		}
	}
	if got.Files[0].Base != "a.vr" || got.Files[0].Ext != ".jpg" {
		t.Fatalf("base/ext 不符合预期：%+v", got.Files[0])
	}
	if got.Welcome != "" {
		t.Fatalf("没有 title.txt 时 Welcome 应为空，实际 %q", got.Welcome)
	}
}

func TestScanPhotos_TitleFirstLine(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Title.TXT"), "\xef\xbb\xbf  Summer trip \nsecond line\n")
	touch(t, filepath.Join(root, "a.vr.jpg"), "x")

	got, err := ScanPhotos(root, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got.Welcome != "Summer trip" {
		t.Fatalf("期望 Welcome=%q，实际 %q", "Summer trip", got.Welcome)
	}
	if len(got.Files) != 1 {
		t.Fatalf("title.txt 不应作为照片：%d", len(got.Files))
	}
}

func TestScanPhotos_SingleFile(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "IMG_1.vr.JPG")
	touch(t, p, "xyz")
	touch(t, filepath.Join(root, "title.txt"), "ignored")

	got, err := ScanPhotos(p, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got.Files) != 1 || got.Files[0].AbsPath != p {
		t.Fatalf("单文件输入应只返回它自己：%+v", got.Files)
	}
	if got.Files[0].Ext != ".jpg" || got.Files[0].Size != 3 {
		t.Fatalf("stat 信息不符合预期：%+v", got.Files[0])
	}
	if got.Welcome != "" {
		t.Fatalf("单文件输入不读取 title.txt")
	}
}

func TestScanPhotos_MissingDir(t *testing.T) {
	if _, err := ScanPhotos(filepath.Join(t.TempDir(), "nope"), false); err == nil {
		t.Fatalf("期望目录不存在时返回错误")
	}
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
