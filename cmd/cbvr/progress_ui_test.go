package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/cbvr/internal/domain"
)

func TestProgressUI_ItemLines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	p.OnItemDone(1, 3, "a.vr.jpg", domain.ItemResult{
		Status:  domain.StatusProcessed,
		ImageID: "#image1-left",
		Caption: "Harbor",
		Outputs: []domain.OutputResult{
			{Role: domain.RoleLeft, Status: domain.OutputStatusReused},
			{Role: domain.RoleRight, Status: domain.OutputStatusRendered},
		},
	}, time.Second)
	p.OnItemDone(2, 3, "b.jpg", domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeNotStereoPhoto,
		ErrorMsg:  "没有右眼数据",
	}, 0)
	p.OnItemDone(3, 3, "c.vr.jpg", domain.ItemResult{
		Status:    domain.StatusSkipped,
		ErrorCode: domain.ErrCodeAborted,
	}, 0)

	out := buf.String()
	for _, want := range []string{
		`[1/3] a.vr.jpg OK #image1-left "Harbor" reused=1/2`,
		"[2/3] b.jpg FAIL not_stereo_photo: 没有右眼数据",
		"[3/3] c.vr.jpg SKIP aborted",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if p.ok != 1 || p.fail != 1 || p.skip != 1 {
		t.Fatalf("计数不符合预期：ok=%d fail=%d skip=%d", p.ok, p.fail, p.skip)
	}
}

func TestProgressUI_ExecStartsAndStopsTicker(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	p.OnPhaseDone("exec", map[string]any{"total_items": 1}, 0)
	if !p.tickerStarted {
		t.Fatalf("exec 阶段后应启动 keepalive ticker")
	}
	p.OnItemDone(1, 1, "a.vr.jpg", domain.ItemResult{Status: domain.StatusProcessed}, 0)
	if p.tickerStarted {
		t.Fatalf("最后一条完成后应停止 ticker")
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(3723 * time.Second); got != "01:02:03" {
		t.Fatalf("formatElapsed=%q", got)
	}
	if got := formatShortDuration(-time.Second); got != "0.0s" {
		t.Fatalf("负数应按 0 处理：%q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  abcdefgh  ", 6); got != "abc..." {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate=%q", got)
	}
}
