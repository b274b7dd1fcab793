package entity

import "strings"

// 生产管线阶段（顺序即管线顺序，索引决定前进/后退方向）
const (
	StageManufacturing = "MANUFACTURING"
	StageTesting       = "TESTING"
	StageShipping      = "SHIPPING"
	StageAtSea         = "AT_SEA"
	StageSMT           = "SMT"
	StageQC            = "QC"
	StageDelivered     = "DELIVERED"
	StageOnsite        = "ONSITE"
	StageCompleted     = "COMPLETED"
	StageFollowUp      = "FOLLOW_UP"
)

// Stages 全局管线定义，进程启动时固定，所有组件共享同一份，禁止修改
var Stages = []string{
	StageManufacturing,
	StageTesting,
	StageShipping,
	StageAtSea,
	StageSMT,
	StageQC,
	StageDelivered,
	StageOnsite,
	StageCompleted,
	StageFollowUp,
}

var stageIndex = func() map[string]int {
	m := make(map[string]int, len(Stages))
	for i, s := range Stages {
		m[s] = i
	}
	return m
}()

// NormalizeStage 规范化阶段标识：大写、空白折叠为下划线。
// 非管线成员返回 ok=false，所有其他阶段操作只接受规范化后的标识。
func NormalizeStage(input string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.Join(strings.Fields(s), "_")
	if _, ok := stageIndex[s]; !ok {
		return "", false
	}
	return s, true
}

// IsValidStage 判断是否为管线成员（只接受规范化标识）
func IsValidStage(stage string) bool {
	_, ok := stageIndex[stage]
	return ok
}

// StageIndexOf 返回阶段在管线中的位置，非成员返回-1
func StageIndexOf(stage string) int {
	if i, ok := stageIndex[stage]; ok {
		return i
	}
	return -1
}

// CanAdvance 判断 current → next 是否为合法前进。
// 规则：next非法拒绝；current非法拒绝（未知状态不可信）；同阶段幂等接受；
// 非快进模式只允许恰好前进一步；快进允许跨多步，但任何模式都不允许后退。
func CanAdvance(current, next string, fastForward bool) bool {
	ni, ok := stageIndex[next]
	if !ok {
		return false
	}
	ci, ok := stageIndex[current]
	if !ok {
		return false
	}
	if ni == ci {
		return true
	}
	if fastForward {
		return ni > ci
	}
	return ni == ci+1
}

// IsTerminalStage 是否为管线末位阶段
func IsTerminalStage(stage string) bool {
	return StageIndexOf(stage) == len(Stages)-1
}

// FirstStage 管线首个阶段
func FirstStage() string {
	return Stages[0]
}

// EffectiveStage 解析行项的有效阶段：行项覆盖 → 父订单阶段 → 管线首阶段。
// 所有需要"当前阶段"的调用点统一走这里，避免各处重复兜底链。
func EffectiveStage(item *OrderItem, order *Order) string {
	if item != nil && item.CurrentStage != nil && *item.CurrentStage != "" {
		return *item.CurrentStage
	}
	if order != nil && order.CurrentStage != "" {
		return order.CurrentStage
	}
	return FirstStage()
}
