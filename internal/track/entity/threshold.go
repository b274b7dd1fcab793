package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StageThreshold 阶段停留时长阈值配置（天）。不变式：warning < critical。
// 无配置记录时回退到 DefaultThresholds。
type StageThreshold struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Stage        string    `json:"stage" gorm:"size:32;uniqueIndex;not null"`
	WarningDays  int       `json:"warning_days" gorm:"not null"`
	CriticalDays int       `json:"critical_days" gorm:"not null"`
	Description  string    `json:"description" gorm:"type:text"`
	UpdatedBy    string    `json:"updated_by" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (StageThreshold) TableName() string {
	return "track_stage_thresholds"
}

// ThresholdDays 阈值对
type ThresholdDays struct {
	WarningDays  int `json:"warning_days"`
	CriticalDays int `json:"critical_days"`
}

// DefaultThresholds 各阶段硬编码默认阈值
var DefaultThresholds = map[string]ThresholdDays{
	StageManufacturing: {WarningDays: 45, CriticalDays: 75},
	StageTesting:       {WarningDays: 7, CriticalDays: 14},
	StageShipping:      {WarningDays: 14, CriticalDays: 30},
	StageAtSea:         {WarningDays: 30, CriticalDays: 50},
	StageSMT:           {WarningDays: 7, CriticalDays: 14},
	StageQC:            {WarningDays: 5, CriticalDays: 10},
	StageDelivered:     {WarningDays: 3, CriticalDays: 7},
	StageOnsite:        {WarningDays: 7, CriticalDays: 14},
	StageCompleted:     {WarningDays: 30, CriticalDays: 60},
	StageFollowUp:      {WarningDays: 30, CriticalDays: 60},
}

// 风险等级
const (
	RiskNormal   = "normal"
	RiskWarning  = "warning"
	RiskCritical = "critical"
)

// SystemSetting 系统设置（键值）
type SystemSetting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:200;not null"`
	UpdatedBy string    `json:"updated_by" gorm:"size:100"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "track_system_settings"
}

// 季节性缓冲设置键。缓冲只作用于MANUFACTURING阶段，
// 下游阶段因开工更晚自然吸收延迟，不做调整。
const (
	SettingSeasonStart      = "season_start"       // MM-DD
	SettingSeasonEnd        = "season_end"         // MM-DD
	SettingSeasonBufferDays = "season_buffer_days" // 整数天
)

// SeasonWindow 季节窗口，支持跨年（startMonth > endMonth 视为跨年窗口）
type SeasonWindow struct {
	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int
	BufferDays int
}

// ParseMonthDay 解析 MM-DD
func ParseMonthDay(s string) (month, day int, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid month-day %q, expected MM-DD", s)
	}
	month, err = strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month in %q", s)
	}
	day, err = strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("invalid day in %q", s)
	}
	return month, day, nil
}

// NewSeasonWindow 由设置值构造季节窗口
func NewSeasonWindow(start, end string, bufferDays int) (*SeasonWindow, error) {
	sm, sd, err := ParseMonthDay(start)
	if err != nil {
		return nil, err
	}
	em, ed, err := ParseMonthDay(end)
	if err != nil {
		return nil, err
	}
	return &SeasonWindow{StartMonth: sm, StartDay: sd, EndMonth: em, EndDay: ed, BufferDays: bufferDays}, nil
}

// Contains 判断日期是否落在窗口内，边界含。
// 跨年窗口（如11-01至02-28）：月份大于起始月、或起始月当天及之后，
// 或月份小于结束月、或结束月当天及之前，均在季内。
func (w *SeasonWindow) Contains(t time.Time) bool {
	m, d := int(t.Month()), t.Day()

	afterStart := m > w.StartMonth || (m == w.StartMonth && d >= w.StartDay)
	beforeEnd := m < w.EndMonth || (m == w.EndMonth && d <= w.EndDay)

	if w.StartMonth > w.EndMonth {
		return afterStart || beforeEnd
	}
	return afterStart && beforeEnd
}
