package entity

import "testing"

// TestJSONBScan tests read-path tolerance for historical metadata payloads
func TestJSONBScan(t *testing.T) {
	var j JSONB
	if err := j.Scan([]byte(`{"reason":"locked"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j["reason"] != "locked" {
		t.Fatalf("expected parsed object, got %v", j)
	}

	// 非对象JSON（历史脏数据）降级为空对象而非报错
	var bad JSONB
	if err := bad.Scan([]byte(`["legacy","payload"]`)); err != nil {
		t.Fatalf("expected degraded scan, got error: %v", err)
	}
	if bad == nil || len(bad) != 0 {
		t.Fatalf("expected empty object after bad payload, got %v", bad)
	}

	var null JSONB
	if err := null.Scan(nil); err != nil {
		t.Fatalf("unexpected error on NULL: %v", err)
	}
	if null != nil {
		t.Fatalf("expected nil on NULL, got %v", null)
	}
}
