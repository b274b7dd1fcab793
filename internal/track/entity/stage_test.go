package entity

import "testing"

// TestNormalizeStage tests stage identifier normalization
func TestNormalizeStage(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"MANUFACTURING", StageManufacturing, true},
		{"manufacturing", StageManufacturing, true},
		{"  at sea  ", StageAtSea, true},
		{"At_Sea", StageAtSea, true},
		{"follow up", StageFollowUp, true},
		{"smt", StageSMT, true},
		{"", "", false},
		{"WAREHOUSE", "", false},
		{"MANUFACTURING EXTRA", "", false},
	}

	for _, c := range cases {
		got, ok := NormalizeStage(c.input)
		if ok != c.ok || got != c.want {
			t.Fatalf("NormalizeStage(%q) = (%q, %v), want (%q, %v)", c.input, got, ok, c.want, c.ok)
		}
	}
}

// TestCanAdvanceSameStage tests that a same-stage move is always accepted
func TestCanAdvanceSameStage(t *testing.T) {
	for _, stage := range Stages {
		if !CanAdvance(stage, stage, false) {
			t.Fatalf("expected same-stage move to be accepted for %s", stage)
		}
		if !CanAdvance(stage, stage, true) {
			t.Fatalf("expected same-stage move with fast-forward to be accepted for %s", stage)
		}
	}
}

// TestCanAdvanceOneStep tests that without fast-forward only the immediate next stage is allowed
func TestCanAdvanceOneStep(t *testing.T) {
	if !CanAdvance(StageManufacturing, StageTesting, false) {
		t.Fatal("expected MANUFACTURING → TESTING to be allowed")
	}
	if CanAdvance(StageManufacturing, StageShipping, false) {
		t.Fatal("expected MANUFACTURING → SHIPPING to be rejected without fast-forward")
	}
	if CanAdvance(StageManufacturing, StageFollowUp, false) {
		t.Fatal("expected MANUFACTURING → FOLLOW_UP to be rejected without fast-forward")
	}
}

// TestCanAdvanceFastForward tests that fast-forward allows multi-step forward but never backward
func TestCanAdvanceFastForward(t *testing.T) {
	if !CanAdvance(StageManufacturing, StageQC, true) {
		t.Fatal("expected MANUFACTURING → QC to be allowed with fast-forward")
	}
	if !CanAdvance(StageTesting, StageFollowUp, true) {
		t.Fatal("expected TESTING → FOLLOW_UP to be allowed with fast-forward")
	}
	// 快进不放行后退
	for i := 1; i < len(Stages); i++ {
		if CanAdvance(Stages[i], Stages[i-1], true) {
			t.Fatalf("expected %s → %s to be rejected even with fast-forward", Stages[i], Stages[i-1])
		}
	}
}

// TestCanAdvanceUnknownStage tests that unknown stages are always rejected
func TestCanAdvanceUnknownStage(t *testing.T) {
	if CanAdvance("WAREHOUSE", StageTesting, true) {
		t.Fatal("expected unknown current stage to be rejected")
	}
	if CanAdvance(StageTesting, "WAREHOUSE", true) {
		t.Fatal("expected unknown target stage to be rejected")
	}
}

// TestStageIndexOf tests pipeline position lookup
func TestStageIndexOf(t *testing.T) {
	if got := StageIndexOf(StageManufacturing); got != 0 {
		t.Fatalf("expected MANUFACTURING at index 0, got %d", got)
	}
	if got := StageIndexOf(StageFollowUp); got != len(Stages)-1 {
		t.Fatalf("expected FOLLOW_UP at last index, got %d", got)
	}
	if got := StageIndexOf("nope"); got != -1 {
		t.Fatalf("expected -1 for non-member, got %d", got)
	}
	if !IsTerminalStage(StageFollowUp) {
		t.Fatal("expected FOLLOW_UP to be terminal")
	}
	if IsTerminalStage(StageCompleted) {
		t.Fatal("expected COMPLETED not to be terminal")
	}
}

// TestEffectiveStage tests the item stage fallback chain
func TestEffectiveStage(t *testing.T) {
	order := &Order{CurrentStage: StageShipping}
	override := StageQC

	if got := EffectiveStage(&OrderItem{CurrentStage: &override}, order); got != StageQC {
		t.Fatalf("expected item override QC, got %s", got)
	}
	if got := EffectiveStage(&OrderItem{}, order); got != StageShipping {
		t.Fatalf("expected fallback to order stage SHIPPING, got %s", got)
	}
	empty := ""
	if got := EffectiveStage(&OrderItem{CurrentStage: &empty}, order); got != StageShipping {
		t.Fatalf("expected empty override to fall back to order stage, got %s", got)
	}
	if got := EffectiveStage(&OrderItem{}, &Order{}); got != StageManufacturing {
		t.Fatalf("expected final fallback to first stage, got %s", got)
	}
}
