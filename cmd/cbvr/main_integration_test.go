package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/cbvr/internal/domain"
	"github.com/John-Robertt/cbvr/internal/xmp/xmptest"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 16)), nil); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	eye := buf.Bytes()
	pkt := xmptest.Packet(xmptest.Photo{
		Attrs: map[string]string{"GImage:Data": base64.StdEncoding.EncodeToString(eye)},
	})
	if err := os.WriteFile(filepath.Join(root, "one.vr.jpg"), xmptest.WithStandard(eye, pkt), 0o644); err != nil {
		t.Fatalf("写入照片失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/cbvr", "build", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.Summary.Processed != 1 {
		t.Fatalf("期望处理 1 张照片：%+v", rr.Summary)
	}
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：processed=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	for _, name := range []string{"index.html", "images.json", ReportFileName} {
		if _, err := os.Stat(filepath.Join(root, "webvr", name)); err != nil {
			t.Fatalf("缺少输出文件 %s：%v", name, err)
		}
	}
}
