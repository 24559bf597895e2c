package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"perp-basis-alerts/internal/engine"
)

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func alertsFor(tokens ...string) []engine.Alert {
	alerts := make([]engine.Alert, 0, len(tokens))
	for _, token := range tokens {
		alerts = append(alerts, engine.Alert{Token: token, Message: "msg " + token})
	}
	return alerts
}

func TestFilterNewOnlyFirstTime(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, &Memory{}, Options{Persist: true, Now: fixedClock(1700000000)})
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}

	first := store.FilterNew(alertsFor("FOO", "BAR"))
	if len(first) != 2 {
		t.Fatalf("首次应返回 2 条新记录, 实际 %d", len(first))
	}
	if first[0].Token != "FOO" || first[1].Token != "BAR" {
		t.Fatalf("新记录顺序应与输入一致: %+v", first)
	}
	if first[0].Timestamp != 1700000000 || first[0].Message != "msg FOO" {
		t.Fatalf("记录内容错误: %+v", first[0])
	}

	second := store.FilterNew(alertsFor("FOO", "BAR"))
	if len(second) != 0 {
		t.Fatalf("第二次应返回空, 实际 %+v", second)
	}
}

func TestFilterNewDedupsPerToken(t *testing.T) {
	store, _ := Open(context.Background(), &Memory{}, Options{})
	alerts := []engine.Alert{
		{Token: "FOO", Message: "venue X"},
		{Token: "foo", Message: "venue Y"},
	}

	fresh := store.FilterNew(alerts)
	if len(fresh) != 1 {
		t.Fatalf("同一 token 多个平台只应产生 1 条记录, 实际 %d", len(fresh))
	}
	if fresh[0].Message != "venue X" {
		t.Fatalf("应保留第一条告警信息, 实际 %q", fresh[0].Message)
	}
}

func TestPersistenceDisabledForgetsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")

	store, err := Open(ctx, NewFile(path), Options{Persist: false})
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	if got := store.FilterNew(alertsFor("FOO")); len(got) != 1 {
		t.Fatalf("应返回 1 条新记录, 实际 %d", len(got))
	}
	if err := store.Save(ctx); err != nil {
		t.Fatalf("关闭持久化时 Save 应为 no-op: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("关闭持久化时不应写文件, stat err=%v", err)
	}

	for i := 0; i < 2; i++ {
		restarted, err := Open(ctx, NewFile(path), Options{Persist: false})
		if err != nil {
			t.Fatalf("重启加载失败: %v", err)
		}
		if restarted.Len() != 0 {
			t.Fatalf("重启后应为空存储, 实际 %d 条", restarted.Len())
		}
	}
}

func TestPersistenceEnabledSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "records.json")

	store, _ := Open(ctx, NewFile(path), Options{Persist: true, Now: fixedClock(42)})
	store.FilterNew(alertsFor("FOO"))
	if err := store.Save(ctx); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取记录文件失败: %v", err)
	}
	var onDisk []map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("记录文件应为 JSON 数组: %v", err)
	}
	if len(onDisk) != 1 || onDisk[0]["token"] != "FOO" || onDisk[0]["timestamp"] != float64(42) || onDisk[0]["message"] != "msg FOO" {
		t.Fatalf("记录文件内容错误: %s", raw)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("临时文件应已被重命名")
	}

	restarted, err := Open(ctx, NewFile(path), Options{Persist: true})
	if err != nil {
		t.Fatalf("重启加载失败: %v", err)
	}
	if !restarted.Has("foo") {
		t.Fatal("重启后应保留 FOO 记录")
	}
	if got := restarted.FilterNew(alertsFor("FOO")); len(got) != 0 {
		t.Fatalf("已记录的 token 不应再次告警: %+v", got)
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}

	store, err := Open(ctx, NewFile(path), Options{Persist: true})
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("损坏文件应返回 StoreError, 实际 %v", err)
	}
	if store == nil || store.Len() != 0 {
		t.Fatal("损坏文件时应返回可用的空存储")
	}
	if got := store.FilterNew(alertsFor("FOO")); len(got) != 1 {
		t.Fatalf("空存储应重新告警, 实际 %d", len(got))
	}
}

func TestLoadCleansStaleTempAndDuplicateTokens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	body := `[{"token":"foo","timestamp":1,"message":"old"},{"token":"BAR","timestamp":2,"message":"b"},{"token":"FOO","timestamp":3,"message":"new"},{"token":"","timestamp":4,"message":"x"}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".tmp", []byte("partial"), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(ctx, NewFile(path), Options{})
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	records := store.Records()
	if len(records) != 2 || records[0].Token != "FOO" || records[0].Message != "new" || records[1].Token != "BAR" {
		t.Fatalf("重复 token 应以最后一条为准且保持首次位置: %+v", records)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("遗留的临时文件应被清理")
	}
}

type failingBackend struct{ Memory }

func (f *failingBackend) Save(context.Context, []Record) error { return errors.New("disk full") }

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store, _ := Open(ctx, &failingBackend{}, Options{Persist: true})
	store.FilterNew(alertsFor("FOO"))

	err := store.Save(ctx)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "save" {
		t.Fatalf("写入失败应返回 StoreError, 实际 %v", err)
	}
	if got := store.FilterNew(alertsFor("FOO")); len(got) != 0 {
		t.Fatal("写入失败后内存中的去重仍应生效")
	}
}

func TestClearWritesThrough(t *testing.T) {
	ctx := context.Background()
	backend := &Memory{}
	store, _ := Open(ctx, backend, Options{Persist: true})
	store.FilterNew(alertsFor("FOO"))
	if err := store.Save(ctx); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("清空失败: %v", err)
	}
	persisted, _ := backend.Load(ctx)
	if store.Len() != 0 || len(persisted) != 0 {
		t.Fatalf("清空后应无记录, 内存 %d 持久化 %d", store.Len(), len(persisted))
	}
}
