package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	if err := json.Unmarshal(bytes, j); err != nil {
		// 历史脏数据（非对象JSON等）降级为空对象，
		// 单条坏记录不拖垮整个查询
		*j = JSONB{}
	}
	return nil
}

// 审计动作
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionLock          = "lock"
	ActionUnlock        = "unlock"
	ActionStageChange   = "stage_change"
	ActionEditBlocked   = "edit_blocked"   // 锁定期间尝试编辑核心字段，拒绝本身也入审计
	ActionDeleteBlocked = "delete_blocked" // 锁定期间尝试删除
	ActionArchive       = "archive"
	ActionRestore       = "restore"
	ActionConfigUpdate  = "config_update"
	ActionImport        = "import"
)

// FieldChange 字段级变更，旧值/新值统一字符串化，缺失值用字面量"null"
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// FieldChanges JSONB存储的变更列表
type FieldChanges []FieldChange

func (c FieldChanges) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *FieldChanges) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan FieldChanges: %v", value)
	}
	return json.Unmarshal(bytes, c)
}

// AuditValue 审计值序列化的唯一入口：历史数据以文本存储，nil用"null"表示。
// 表示方式后续若替换只改这里。
func AuditValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return "null"
		}
		return *t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case *float64:
		if t == nil {
			return "null"
		}
		return strconv.FormatFloat(*t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return "null"
		}
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AuditLog 审计日志：对任意实体的变更动作记录。只追加，永不修改。
type AuditLog struct {
	ID             string `json:"id" gorm:"primaryKey;size:32"`
	EntityType     string `json:"entity_type" gorm:"size:20;not null;index:idx_audit_entity"`
	EntityID       string `json:"entity_id" gorm:"size:32;not null;index:idx_audit_entity"`
	ParentEntityID string `json:"parent_entity_id" gorm:"size:32;index"` // 行项的父订单，用于订单维度聚合查询

	Action   string       `json:"action" gorm:"size:32;not null"`
	Changes  FieldChanges `json:"changes" gorm:"type:jsonb"`
	Metadata JSONB        `json:"metadata" gorm:"type:jsonb"`

	UserID    string    `json:"user_id" gorm:"size:32"`
	UserName  string    `json:"user_name" gorm:"size:100"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "track_audit_logs"
}

// === 审计元数据：按动作分型，每种动作的形状静态已知 ===

// LockMetadata lock/unlock 动作元数据
type LockMetadata struct {
	Reason string `json:"reason,omitempty"`
}

// StageMetadata stage_change 动作元数据
type StageMetadata struct {
	FromStage   string `json:"from_stage"`
	ToStage     string `json:"to_stage"`
	FastForward bool   `json:"fast_forward,omitempty"`
	Backward    bool   `json:"backward,omitempty"`
	Note        string `json:"note,omitempty"`
}

// BlockedMetadata edit_blocked/delete_blocked 动作元数据
type BlockedMetadata struct {
	RequestedFields []string `json:"requested_fields,omitempty"`
	Reason          string   `json:"reason"`
}

// ImportMetadata import 动作元数据
type ImportMetadata struct {
	FileName  string `json:"file_name"`
	RowCount  int    `json:"row_count"`
	ItemCount int    `json:"item_count"`
}

// MetadataFrom 将分型元数据转为JSONB存储形式
func MetadataFrom(v interface{}) JSONB {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m JSONB
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
