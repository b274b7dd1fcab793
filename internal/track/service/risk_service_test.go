package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/bitfantasy/nimo-track/internal/track/testutil"
)

func setupRiskTest(t *testing.T) (*RiskService, *repository.Repositories) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	audit := NewAuditService(repos.AuditLog)
	risk := NewRiskService(repos.Threshold, repos.StatusEvent, repos.Order, nil, db, audit)
	return risk, repos
}

// TestClassify tests the level boundaries
func TestClassify(t *testing.T) {
	days := entity.ThresholdDays{WarningDays: 10, CriticalDays: 20}

	if got := Classify(0, days); got != entity.RiskNormal {
		t.Fatalf("expected normal at 0, got %s", got)
	}
	if got := Classify(9.9, days); got != entity.RiskNormal {
		t.Fatalf("expected normal just below warning, got %s", got)
	}
	if got := Classify(10, days); got != entity.RiskWarning {
		t.Fatalf("expected warning at the threshold, got %s", got)
	}
	if got := Classify(19.9, days); got != entity.RiskWarning {
		t.Fatalf("expected warning just below critical, got %s", got)
	}
	if got := Classify(20, days); got != entity.RiskCritical {
		t.Fatalf("expected critical at the threshold, got %s", got)
	}
}

// TestEffectiveThresholdDefaults tests the fallback to hard-coded defaults
func TestEffectiveThresholdDefaults(t *testing.T) {
	risk, _ := setupRiskTest(t)
	ctx := context.Background()

	// No rows configured: defaults apply, no season settings means no adjustment
	days, adjusted := risk.EffectiveThreshold(ctx, entity.StageQC, time.Now())
	want := entity.DefaultThresholds[entity.StageQC]
	if days != want || adjusted {
		t.Fatalf("expected default %+v unadjusted, got %+v adjusted=%v", want, days, adjusted)
	}
}

// TestEffectiveThresholdConfigured tests that a configured row overrides the default
func TestEffectiveThresholdConfigured(t *testing.T) {
	risk, repos := setupRiskTest(t)
	ctx := context.Background()

	err := repos.Threshold.Upsert(ctx, repos.Order.DB(), &entity.StageThreshold{
		Stage:        entity.StageTesting,
		WarningDays:  3,
		CriticalDays: 6,
	})
	if err != nil {
		t.Fatalf("upsert threshold: %v", err)
	}

	days, _ := risk.EffectiveThreshold(ctx, entity.StageTesting, time.Now())
	if days.WarningDays != 3 || days.CriticalDays != 6 {
		t.Fatalf("expected configured 3/6, got %+v", days)
	}
}

// TestSeasonalBufferOnManufacturing tests that the buffer applies only to
// MANUFACTURING and only inside the season window
func TestSeasonalBufferOnManufacturing(t *testing.T) {
	risk, repos := setupRiskTest(t)
	ctx := context.Background()
	db := repos.Order.DB()

	for key, value := range map[string]string{
		entity.SettingSeasonStart:      "12-15",
		entity.SettingSeasonEnd:        "02-15",
		entity.SettingSeasonBufferDays: "15",
	} {
		if err := repos.Threshold.SetSetting(ctx, db, key, value, "test"); err != nil {
			t.Fatalf("set setting %s: %v", key, err)
		}
	}

	inSeason := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	offSeason := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	base := entity.DefaultThresholds[entity.StageManufacturing]

	days, adjusted := risk.EffectiveThreshold(ctx, entity.StageManufacturing, inSeason)
	if !adjusted {
		t.Fatal("expected seasonal adjustment in window")
	}
	if days.WarningDays != base.WarningDays+15 || days.CriticalDays != base.CriticalDays+15 {
		t.Fatalf("expected %d/%d, got %+v", base.WarningDays+15, base.CriticalDays+15, days)
	}

	days2, adjusted2 := risk.EffectiveThreshold(ctx, entity.StageManufacturing, offSeason)
	if adjusted2 || days2 != base {
		t.Fatalf("expected unadjusted defaults off-season, got %+v adjusted=%v", days2, adjusted2)
	}

	// Other stages never get the buffer
	days3, adjusted3 := risk.EffectiveThreshold(ctx, entity.StageShipping, inSeason)
	if adjusted3 || days3 != entity.DefaultThresholds[entity.StageShipping] {
		t.Fatalf("expected SHIPPING untouched in season, got %+v adjusted=%v", days3, adjusted3)
	}
}

// TestAssessWithoutEvents tests the degradation when no stage event exists
func TestAssessWithoutEvents(t *testing.T) {
	risk, _ := setupRiskTest(t)
	ctx := context.Background()

	order := &entity.Order{ID: "ord-no-events", CurrentStage: entity.StageShipping}
	info := risk.AssessOrder(ctx, order)
	if info.Level != entity.RiskNormal {
		t.Fatalf("expected normal without events, got %s", info.Level)
	}
	if info.InStageSeconds != 0 || info.TrackedSince != nil {
		t.Fatalf("expected zero tracking info, got %+v", info)
	}
}

// TestAssessUsesLatestStageEvent tests elapsed time derivation from the event trail
func TestAssessUsesLatestStageEvent(t *testing.T) {
	risk, repos := setupRiskTest(t)
	ctx := context.Background()
	db := repos.Order.DB()

	// QC default is 5/10 days; an event 7 days old lands in warning
	event := &entity.StatusEvent{
		EntityType: entity.EntityTypeOrder,
		EntityID:   "ord-aged",
		OrderID:    "ord-aged",
		Stage:      entity.StageQC,
		CreatedAt:  time.Now().Add(-7 * 24 * time.Hour),
	}
	if err := repos.StatusEvent.Create(ctx, db, event); err != nil {
		t.Fatalf("create event: %v", err)
	}

	order := &entity.Order{ID: "ord-aged", CurrentStage: entity.StageQC}
	info := risk.AssessOrder(ctx, order)
	if info.Level != entity.RiskWarning {
		t.Fatalf("expected warning at 7 days in QC, got %s", info.Level)
	}
	if info.InStageDays < 6.9 || info.InStageDays > 7.1 {
		t.Fatalf("expected ~7 days in stage, got %f", info.InStageDays)
	}
	if info.TrackedSince == nil {
		t.Fatal("expected tracked_since to be set")
	}
}

// TestEstimateDelivery tests the ETA derivation from expected stage durations
func TestEstimateDelivery(t *testing.T) {
	risk, _ := setupRiskTest(t)
	ctx := context.Background()

	// Off-season start, default thresholds: the per-stage means sum to
	// 60 + 10.5 + 22 + 40 + 10.5 + 7.5 + 5 + 10.5 + 45 + 45 = 256 expected days
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	eta := risk.EstimateDelivery(ctx, from)

	want := from.Add(time.Duration(256 * 24 * float64(time.Hour)))
	diff := eta.Sub(want)
	if diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected ETA %v, got %v", want, eta)
	}
	if !eta.After(from) {
		t.Fatal("expected ETA after the start date")
	}
}

// TestUpdateThresholdPolicy tests role and invariant checks on threshold updates
func TestUpdateThresholdPolicy(t *testing.T) {
	risk, _ := setupRiskTest(t)
	ctx := context.Background()

	staff := Actor{ID: "u1", Name: "staff", Roles: []string{"track_staff"}}
	admin := Actor{ID: "u2", Name: "admin", Roles: []string{AdminRole}}

	if _, err := risk.UpdateThreshold(ctx, "TESTING", 5, 10, "", staff); err == nil {
		t.Fatal("expected policy error for non-admin")
	}
	if _, err := risk.UpdateThreshold(ctx, "TESTING", 10, 5, "", admin); err == nil {
		t.Fatal("expected validation error for warning >= critical")
	}
	if _, err := risk.UpdateThreshold(ctx, "NOPE", 5, 10, "", admin); err == nil {
		t.Fatal("expected validation error for unknown stage")
	}

	updated, err := risk.UpdateThreshold(ctx, "testing", 5, 10, "加急线", admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Stage != entity.StageTesting {
		t.Fatalf("expected normalized stage TESTING, got %s", updated.Stage)
	}

	days, _ := risk.EffectiveThreshold(ctx, entity.StageTesting, time.Now())
	if days.WarningDays != 5 || days.CriticalDays != 10 {
		t.Fatalf("expected 5/10 after update, got %+v", days)
	}
}

// TestListAtRisk tests the dashboard scan: terminal stages excluded, critical first
func TestListAtRisk(t *testing.T) {
	risk, repos := setupRiskTest(t)
	ctx := context.Background()
	db := repos.Order.DB()

	mk := func(id, stage string, age time.Duration) {
		if err := repos.Order.Create(ctx, db, &entity.Order{ID: id, AccountID: "acc", CurrentStage: stage}); err != nil {
			t.Fatalf("seed order: %v", err)
		}
		if err := repos.StatusEvent.Create(ctx, db, &entity.StatusEvent{
			EntityType: entity.EntityTypeOrder, EntityID: id, OrderID: id,
			Stage: stage, CreatedAt: time.Now().Add(-age),
		}); err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	// QC默认阈值5/10天
	mk("ord-crit", entity.StageQC, 12*24*time.Hour)
	mk("ord-warn", entity.StageQC, 7*24*time.Hour)
	mk("ord-done", entity.StageCompleted, 90*24*time.Hour)

	rows, err := risk.ListAtRisk(ctx)
	if err != nil {
		t.Fatalf("list at risk: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 at-risk orders, got %d", len(rows))
	}
	if rows[0].Order.ID != "ord-crit" || rows[0].Risk.Level != entity.RiskCritical {
		t.Fatalf("expected critical first, got %s %s", rows[0].Order.ID, rows[0].Risk.Level)
	}
	if rows[1].Order.ID != "ord-warn" || rows[1].Risk.Level != entity.RiskWarning {
		t.Fatalf("expected warning second, got %s %s", rows[1].Order.ID, rows[1].Risk.Level)
	}
}
