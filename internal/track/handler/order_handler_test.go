package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/bitfantasy/nimo-track/internal/track/testutil"
)

func setupTrackTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	auditSvc := service.NewAuditService(repos.AuditLog)
	riskSvc := service.NewRiskService(repos.Threshold, repos.StatusEvent, repos.Order, nil, db, auditSvc)
	orderSvc := service.NewOrderService(repos.Order, repos.Account, repos.StatusEvent, auditSvc, riskSvc, db)
	stageSvc := service.NewStageService(repos.Order, repos.StatusEvent, auditSvc, db)
	accountSvc := service.NewAccountService(repos.Account, repos.Order, auditSvc, riskSvc, db)

	orderH := NewOrderHandler(orderSvc)
	stageH := NewStageHandler(stageSvc)
	auditH := NewAuditHandler(auditSvc)
	shareH := NewShareHandler(accountSvc)

	router := testutil.SetupRouter()
	router.GET("/api/v1/share/:token", shareH.Resolve)
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/orders", orderH.Create)
	api.GET("/orders/:id", orderH.Get)
	api.PATCH("/orders/:id", orderH.Update)
	api.DELETE("/orders/:id", orderH.Delete)
	api.POST("/orders/:id/lock", orderH.Lock)
	api.POST("/orders/:id/unlock", orderH.Unlock)
	api.POST("/orders/:id/stage", stageH.AdvanceOrder)
	api.POST("/orders/:id/items", orderH.AddItem)
	api.PATCH("/orders/:id/items/:itemId", orderH.UpdateItem)
	api.DELETE("/orders/:id/items/:itemId", orderH.DeleteItem)
	api.POST("/orders/:id/items/:itemId/stage", stageH.AdvanceItem)
	api.POST("/orders/:id/items/:itemId/archive", orderH.ArchiveItem)
	api.GET("/audit/:entityId", auditH.History)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

// seedOrderWithItem creates an account and an order with one item through the API
func seedOrderWithItem(t *testing.T, env *testutil.TestEnv, token string) (orderID, itemID string) {
	t.Helper()
	testutil.SeedTestAccount(t, env.DB, "acc-001", "测试客户A")

	body := map[string]interface{}{
		"account_id":  "acc-001",
		"po_label":    "PO-2026-001",
		"salesperson": "张三",
		"items": []map[string]interface{}{
			{"product_name": "搅拌站主机", "product_code": "MIX-100", "quantity": 2},
		},
	}
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	orderID = data["id"].(string)
	items := data["items"].([]interface{})
	itemID = items[0].(map[string]interface{})["id"].(string)
	return orderID, itemID
}

// TestLockBlocksCoreFieldEdit tests that a locked order rejects core field edits
// while measurement fields stay editable, and that the rejection is audited
func TestLockBlocksCoreFieldEdit(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, itemID := seedOrderWithItem(t, env, token)

	// Lock the order
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/lock",
		map[string]interface{}{"reason": "发货前冻结"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for lock, got %d: %s", w.Code, w.Body.String())
	}

	// Core field edit must be rejected
	w2 := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID+"/items/"+itemID,
		map[string]interface{}{"product_code": "MIX-200"}, token)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for locked core field, got %d: %s", w2.Code, w2.Body.String())
	}

	// Item must be unchanged
	var item entity.OrderItem
	env.DB.Where("id = ?", itemID).First(&item)
	if item.ProductCode != "MIX-100" {
		t.Fatalf("expected product code unchanged, got %s", item.ProductCode)
	}

	// Measurement field edit must still pass
	w3 := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID+"/items/"+itemID,
		map[string]interface{}{"height": 120.5, "weight": 800.0}, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected 200 for measurement fields on locked order, got %d: %s", w3.Code, w3.Body.String())
	}

	env.DB.Where("id = ?", itemID).First(&item)
	if item.Height == nil || *item.Height != 120.5 {
		t.Fatalf("expected height 120.5, got %v", item.Height)
	}

	// The blocked attempt itself must be audited
	var blocked entity.AuditLog
	err := env.DB.Where("entity_id = ? AND action = ?", itemID, entity.ActionEditBlocked).First(&blocked).Error
	if err != nil {
		t.Fatalf("expected an edit_blocked audit entry: %v", err)
	}
	if blocked.ParentEntityID != orderID {
		t.Fatalf("expected blocked entry to roll up to order %s, got %s", orderID, blocked.ParentEntityID)
	}
}

// TestUnlockPolicy tests that unlock requires the admin role and a substantive reason
func TestUnlockPolicy(t *testing.T) {
	env := setupTrackTest(t)
	staff := testutil.StaffTestToken()
	admin := testutil.AdminTestToken()

	orderID, _ := seedOrderWithItem(t, env, staff)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/lock",
		map[string]interface{}{"reason": "对账"}, staff)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for lock, got %d", w.Code)
	}

	// Staff cannot unlock
	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/unlock",
		map[string]interface{}{"reason": "需要修改订单核心字段"}, staff)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff unlock, got %d: %s", w2.Code, w2.Body.String())
	}

	// Admin with a short reason is rejected
	w3 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/unlock",
		map[string]interface{}{"reason": "短理由"}, admin)
	if w3.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short reason, got %d: %s", w3.Code, w3.Body.String())
	}

	// Whitespace does not count toward the minimum length
	w4 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/unlock",
		map[string]interface{}{"reason": "   ab   "}, admin)
	if w4.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for padded short reason, got %d: %s", w4.Code, w4.Body.String())
	}

	// Admin with a proper reason succeeds
	w5 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/unlock",
		map[string]interface{}{"reason": "客户要求修改PO编号，已确认"}, admin)
	if w5.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin unlock, got %d: %s", w5.Code, w5.Body.String())
	}

	var order entity.Order
	env.DB.Where("id = ?", orderID).First(&order)
	if order.IsLocked || order.LockedAt != nil || order.LockedBy != "" {
		t.Fatalf("expected lock fields cleared, got %+v", order)
	}

	// Both lock and unlock are on the audit trail
	var count int64
	env.DB.Model(&entity.AuditLog{}).
		Where("entity_id = ? AND action IN ?", orderID, []string{entity.ActionLock, entity.ActionUnlock}).
		Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 lock/unlock audit entries, got %d", count)
	}
}

// TestDoubleLockRejected tests that locking a locked order fails without touching lock info
func TestDoubleLockRejected(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, _ := seedOrderWithItem(t, env, token)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/lock",
		map[string]interface{}{"reason": "第一次锁定"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for first lock, got %d", w.Code)
	}

	var before entity.Order
	env.DB.Where("id = ?", orderID).First(&before)

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/lock",
		map[string]interface{}{"reason": "第二次锁定"}, testutil.AdminTestToken())
	if w2.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second lock, got %d: %s", w2.Code, w2.Body.String())
	}

	var after entity.Order
	env.DB.Where("id = ?", orderID).First(&after)
	if !after.LockedAt.Equal(*before.LockedAt) || after.LockedBy != before.LockedBy {
		t.Fatalf("expected lock info untouched: before=%v/%s after=%v/%s",
			before.LockedAt, before.LockedBy, after.LockedAt, after.LockedBy)
	}
}

// TestDeleteBlockedWhileLocked tests that deletion is refused and audited on a locked order
func TestDeleteBlockedWhileLocked(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, itemID := seedOrderWithItem(t, env, token)

	testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/lock",
		map[string]interface{}{"reason": "结算中"}, token)

	w := testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/orders/"+orderID, nil, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for delete on locked order, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodDelete, "/api/v1/orders/"+orderID+"/items/"+itemID, nil, token)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for item delete on locked order, got %d: %s", w2.Code, w2.Body.String())
	}

	var count int64
	env.DB.Model(&entity.Order{}).Where("id = ?", orderID).Count(&count)
	if count != 1 {
		t.Fatal("expected order to survive delete attempt")
	}

	var blockedCount int64
	env.DB.Model(&entity.AuditLog{}).
		Where("action = ?", entity.ActionDeleteBlocked).
		Count(&blockedCount)
	if blockedCount != 2 {
		t.Fatalf("expected 2 delete_blocked audit entries, got %d", blockedCount)
	}
}

// TestProcurementFieldsAdminOnly tests that the procurement tier requires the admin role
func TestProcurementFieldsAdminOnly(t *testing.T) {
	env := setupTrackTest(t)
	staff := testutil.StaffTestToken()
	admin := testutil.AdminTestToken()

	orderID, itemID := seedOrderWithItem(t, env, staff)

	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID+"/items/"+itemID,
		map[string]interface{}{"is_ordered": true, "procurement_price": 15800.0}, staff)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff editing procurement fields, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID+"/items/"+itemID,
		map[string]interface{}{"is_ordered": true, "procurement_price": 15800.0}, admin)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", w2.Code, w2.Body.String())
	}

	var item entity.OrderItem
	env.DB.Where("id = ?", itemID).First(&item)
	if !item.IsOrdered || item.ProcurementPrice == nil || *item.ProcurementPrice != 15800.0 {
		t.Fatalf("expected procurement fields applied, got %+v", item)
	}
}

// TestAuditRollup tests that querying the order id returns item entries through the parent id
func TestAuditRollup(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, itemID := seedOrderWithItem(t, env, token)

	// One order-level edit, one item-level edit
	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID,
		map[string]interface{}{"carrier": "COSCO", "tracking_no": "TRK-001"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w2 := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID+"/items/"+itemID,
		map[string]interface{}{"weight": 950.0}, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w2.Code, w2.Body.String())
	}

	w3 := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/audit/"+orderID, nil, token)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w3.Code, w3.Body.String())
	}

	resp := testutil.ParseResponse(w3)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})

	var sawOrderUpdate, sawItemUpdate bool
	for _, raw := range items {
		log := raw.(map[string]interface{})
		if log["action"] != entity.ActionUpdate {
			continue
		}
		if log["entity_id"] == orderID {
			sawOrderUpdate = true
		}
		if log["entity_id"] == itemID && log["parent_entity_id"] == orderID {
			sawItemUpdate = true
		}
	}
	if !sawOrderUpdate {
		t.Fatal("expected order update entry in rollup")
	}
	if !sawItemUpdate {
		t.Fatal("expected item update entry via parent_entity_id rollup")
	}
}

// TestEditNoOpSkipsAudit tests that writing identical values produces no audit entry
func TestEditNoOpSkipsAudit(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, _ := seedOrderWithItem(t, env, token)

	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID,
		map[string]interface{}{"po_label": "PO-2026-001"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	env.DB.Model(&entity.AuditLog{}).
		Where("entity_id = ? AND action = ?", orderID, entity.ActionUpdate).
		Count(&count)
	if count != 0 {
		t.Fatalf("expected no update audit entry for no-op edit, got %d", count)
	}
}

// TestUnknownFieldRejected tests that unknown field names fail validation
func TestUnknownFieldRejected(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	orderID, _ := seedOrderWithItem(t, env, token)

	w := testutil.DoRequest(env.Router, http.MethodPatch, "/api/v1/orders/"+orderID,
		map[string]interface{}{"is_locked": false}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-editable field, got %d: %s", w.Code, w.Body.String())
	}
}

// TestShareLinkReadOnlyView tests the customer share link exposes progress without internals
func TestShareLinkReadOnlyView(t *testing.T) {
	env := setupTrackTest(t)
	token := testutil.StaffTestToken()

	seedOrderWithItem(t, env, token)

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/share/share-acc-001", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for share link without auth, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["account_name"] != "测试客户A" {
		t.Fatalf("unexpected account name: %v", data["account_name"])
	}
	orders := data["orders"].([]interface{})
	if len(orders) != 1 {
		t.Fatalf("expected 1 order in share view, got %d", len(orders))
	}
	first := orders[0].(map[string]interface{})
	if first["current_stage"] != entity.StageManufacturing {
		t.Fatalf("expected MANUFACTURING, got %v", first["current_stage"])
	}
	if _, exists := first["procurement_price"]; exists {
		t.Fatal("share view must not expose procurement fields")
	}

	// Unknown token is a 404
	w2 := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/share/nope", nil, "")
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", w2.Code)
	}
}
