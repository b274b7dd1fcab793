package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/bitfantasy/nimo-track/internal/track/testutil"
)

// TestGateFields tests tier decisions without touching storage
func TestGateFields(t *testing.T) {
	staff := Actor{ID: "u1", Roles: []string{"track_staff"}}
	admin := Actor{ID: "u2", Roles: []string{AdminRole}}

	// 未锁定：核心字段放行
	blocked, denied, err := gateFields(map[string]interface{}{"product_code": "X"}, itemFieldTiers, false, staff)
	if err != nil || len(blocked) != 0 || len(denied) != 0 {
		t.Fatalf("expected clean pass, got blocked=%v denied=%v err=%v", blocked, denied, err)
	}

	// 锁定：核心字段拦截，测量字段放行
	blocked, _, err = gateFields(map[string]interface{}{"product_code": "X", "height": 1.0}, itemFieldTiers, true, staff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocked) != 1 || blocked[0] != "product_code" {
		t.Fatalf("expected only product_code blocked, got %v", blocked)
	}

	// 锁定：纯测量字段不拦截
	blocked, _, err = gateFields(map[string]interface{}{"height": 1.0, "weight_unit": "t"}, itemFieldTiers, true, staff)
	if err != nil || len(blocked) != 0 {
		t.Fatalf("expected measurement fields to pass while locked, got %v err=%v", blocked, err)
	}

	// 采购档：非管理员拒绝，管理员放行
	_, denied, err = gateFields(map[string]interface{}{"procurement_price": 100.0}, itemFieldTiers, false, staff)
	if err != nil || len(denied) != 1 {
		t.Fatalf("expected admin denial for staff, got %v err=%v", denied, err)
	}
	_, denied, err = gateFields(map[string]interface{}{"procurement_price": 100.0}, itemFieldTiers, false, admin)
	if err != nil || len(denied) != 0 {
		t.Fatalf("expected admin pass, got %v err=%v", denied, err)
	}

	// 未知字段：整体校验失败
	if _, _, err = gateFields(map[string]interface{}{"is_locked": true}, orderFieldTiers, false, staff); err == nil {
		t.Fatal("expected validation error for unknown field")
	}
}

// TestBlockedEditAuditSurvivesRollback tests that the rejection entry for a
// locked-order edit persists even though the edit transaction rolls back
func TestBlockedEditAuditSurvivesRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	audit := NewAuditService(repos.AuditLog)
	risk := NewRiskService(repos.Threshold, repos.StatusEvent, repos.Order, nil, db, audit)
	orders := NewOrderService(repos.Order, repos.Account, repos.StatusEvent, audit, risk, db)
	ctx := context.Background()
	staff := Actor{ID: "u1", Name: "staff", Roles: []string{"track_staff"}}

	testutil.SeedTestAccount(t, db, "acc-svc-001", "客户S")
	order, err := orders.CreateOrder(ctx, &CreateOrderRequest{AccountID: "acc-svc-001", POLabel: "PO-S-1"}, staff)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := orders.LockOrder(ctx, order.ID, "月结冻结", staff); err != nil {
		t.Fatalf("lock order: %v", err)
	}

	_, _, err = orders.EditOrderFields(ctx, order.ID, map[string]interface{}{"po_label": "PO-S-2"}, staff)
	if err == nil {
		t.Fatal("expected policy error for core field while locked")
	}
	if e := AsError(err); e == nil || e.Kind != KindPolicy {
		t.Fatalf("expected policy error, got %v", err)
	}

	// 编辑事务已回滚，但拒绝记录必须已提交
	var count int64
	db.Model(&entity.AuditLog{}).
		Where("entity_id = ? AND action = ?", order.ID, entity.ActionEditBlocked).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 persisted edit_blocked entry after rollback, got %d", count)
	}

	got, err := repos.Order.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.POLabel != "PO-S-1" {
		t.Fatalf("expected po_label untouched, got %q", got.POLabel)
	}
}

// TestBlockedDeleteAuditSurvivesRollback tests the same persistence rule on the
// lock-guarded delete path
func TestBlockedDeleteAuditSurvivesRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	audit := NewAuditService(repos.AuditLog)
	risk := NewRiskService(repos.Threshold, repos.StatusEvent, repos.Order, nil, db, audit)
	orders := NewOrderService(repos.Order, repos.Account, repos.StatusEvent, audit, risk, db)
	ctx := context.Background()
	staff := Actor{ID: "u1", Name: "staff", Roles: []string{"track_staff"}}

	testutil.SeedTestAccount(t, db, "acc-svc-002", "客户D")
	order, err := orders.CreateOrder(ctx, &CreateOrderRequest{AccountID: "acc-svc-002"}, staff)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := orders.LockOrder(ctx, order.ID, "", staff); err != nil {
		t.Fatalf("lock order: %v", err)
	}

	if err := orders.DeleteOrder(ctx, order.ID, staff); err == nil {
		t.Fatal("expected policy error deleting a locked order")
	}

	var count int64
	db.Model(&entity.AuditLog{}).
		Where("entity_id = ? AND action = ?", order.ID, entity.ActionDeleteBlocked).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 persisted delete_blocked entry after rollback, got %d", count)
	}
	if _, err := repos.Order.FindByID(ctx, order.ID); err != nil {
		t.Fatalf("expected order to survive the blocked delete: %v", err)
	}
}

// TestCorrectionNote tests the forced correction marker
func TestCorrectionNote(t *testing.T) {
	got := correctionNote("", "SHIPPING", "TESTING")
	if got != "[correction] reverted SHIPPING → TESTING" {
		t.Fatalf("unexpected note: %q", got)
	}
	got = correctionNote("录错", "QC", "SMT")
	if got != "[correction] reverted QC → SMT: 录错" {
		t.Fatalf("unexpected note: %q", got)
	}
}
