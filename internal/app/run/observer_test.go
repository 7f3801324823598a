package run

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/cbvr/internal/config"
	"github.com/John-Robertt/cbvr/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, source string, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, source)
}

func (o *recordObserver) OnProgress(done, total, ok, fail, skip int, current string, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}

func TestExecuteWithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "site")
	writeCardboard(t, in, "b.vr.jpg", "")
	writeCardboard(t, in, "a.vr.jpg", "")

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), testConfig(in, out), obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"scan", "plan", "exec", "layout", "site"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if !reflect.DeepEqual(obs.items, []string{"a.vr.jpg", "b.vr.jpg"}) {
		t.Fatalf("条目事件应按枚举顺序：items=%v", obs.items)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	in := t.TempDir()
	writeCardboard(t, in, "a.vr.jpg", "")

	cfg := testConfig(in, filepath.Join(t.TempDir(), "site"))
	cfg.Force = true

	a := Execute(context.Background(), cfg)
	b := ExecuteWithObserver(context.Background(), cfg, nil)

	// 时间与 run_id 每次不同；对比时归零。
	a.StartedAt, a.FinishedAt, a.RunID = time.Time{}, time.Time{}, ""
	b.StartedAt, b.FinishedAt, b.RunID = time.Time{}, time.Time{}, ""

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
