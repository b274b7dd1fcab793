package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 阈值缓存键与TTL。配置变更时主动失效，TTL兜底多实例间的过期。
const (
	thresholdCacheKeyPrefix = "track:threshold:"
	seasonCacheKey          = "track:season"
	configCacheTTL          = 5 * time.Minute
)

// RiskService 风险评估服务：按阶段停留时长对订单/行项分级，
// 并维护阈值注册表与季节性缓冲配置。
type RiskService struct {
	thresholdRepo *repository.ThresholdRepository
	eventRepo     *repository.StatusEventRepository
	orderRepo     *repository.OrderRepository
	rdb           *redis.Client
	db            *gorm.DB
	audit         *AuditService
}

func NewRiskService(thresholdRepo *repository.ThresholdRepository, eventRepo *repository.StatusEventRepository, orderRepo *repository.OrderRepository, rdb *redis.Client, db *gorm.DB, audit *AuditService) *RiskService {
	return &RiskService{thresholdRepo: thresholdRepo, eventRepo: eventRepo, orderRepo: orderRepo, rdb: rdb, db: db, audit: audit}
}

// RiskInfo 风险评估结果
type RiskInfo struct {
	Stage          string     `json:"stage"`
	Level          string     `json:"level"`
	InStageSeconds int64      `json:"in_stage_seconds"`
	InStageDays    float64    `json:"in_stage_days"`
	TrackedSince   *time.Time `json:"tracked_since"`
	WarningDays    int        `json:"warning_days"`
	CriticalDays   int        `json:"critical_days"`
	SeasonAdjusted bool       `json:"season_adjusted"`
}

// === 阈值解析 ===

// EffectiveThreshold 解析某阶段在指定时点的生效阈值：
// 配置记录 → 硬编码默认值，再叠加季节性缓冲（仅MANUFACTURING且时点在季内）。
func (s *RiskService) EffectiveThreshold(ctx context.Context, stage string, at time.Time) (entity.ThresholdDays, bool) {
	days := s.baseThreshold(ctx, stage)

	if stage == entity.StageManufacturing {
		if w := s.seasonWindow(ctx); w != nil && w.BufferDays > 0 && w.Contains(at) {
			days.WarningDays += w.BufferDays
			days.CriticalDays += w.BufferDays
			return days, true
		}
	}
	return days, false
}

func (s *RiskService) baseThreshold(ctx context.Context, stage string) entity.ThresholdDays {
	fallback, ok := entity.DefaultThresholds[stage]
	if !ok {
		// 非管线阶段无阈值语义，给一个不会误报的宽松值
		fallback = entity.ThresholdDays{WarningDays: 365, CriticalDays: 730}
	}

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, thresholdCacheKeyPrefix+stage).Result(); err == nil {
			var days entity.ThresholdDays
			if json.Unmarshal([]byte(raw), &days) == nil {
				return days
			}
		}
	}

	t, err := s.thresholdRepo.FindByStage(ctx, stage)
	if errors.Is(err, repository.ErrNotFound) {
		s.cacheThreshold(ctx, stage, fallback)
		return fallback
	}
	if err != nil {
		return fallback
	}

	days := entity.ThresholdDays{WarningDays: t.WarningDays, CriticalDays: t.CriticalDays}
	s.cacheThreshold(ctx, stage, days)
	return days
}

func (s *RiskService) cacheThreshold(ctx context.Context, stage string, days entity.ThresholdDays) {
	if s.rdb == nil {
		return
	}
	if raw, err := json.Marshal(days); err == nil {
		s.rdb.Set(ctx, thresholdCacheKeyPrefix+stage, raw, configCacheTTL)
	}
}

// SeasonConfig 季节性缓冲配置
type SeasonConfig struct {
	Start      string `json:"start"` // MM-DD
	End        string `json:"end"`   // MM-DD
	BufferDays int    `json:"buffer_days"`
}

func (s *RiskService) seasonWindow(ctx context.Context) *entity.SeasonWindow {
	cfg := s.seasonConfig(ctx)
	if cfg == nil {
		return nil
	}
	w, err := entity.NewSeasonWindow(cfg.Start, cfg.End, cfg.BufferDays)
	if err != nil {
		return nil
	}
	return w
}

func (s *RiskService) seasonConfig(ctx context.Context) *SeasonConfig {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, seasonCacheKey).Result(); err == nil {
			var cfg SeasonConfig
			if json.Unmarshal([]byte(raw), &cfg) == nil {
				return &cfg
			}
		}
	}

	start, err := s.thresholdRepo.GetSetting(ctx, entity.SettingSeasonStart)
	if err != nil {
		return nil
	}
	end, err := s.thresholdRepo.GetSetting(ctx, entity.SettingSeasonEnd)
	if err != nil {
		return nil
	}
	bufferRaw, err := s.thresholdRepo.GetSetting(ctx, entity.SettingSeasonBufferDays)
	if err != nil {
		return nil
	}
	var buffer int
	if _, err := fmt.Sscanf(bufferRaw, "%d", &buffer); err != nil {
		return nil
	}

	cfg := &SeasonConfig{Start: start, End: end, BufferDays: buffer}
	if s.rdb != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			s.rdb.Set(ctx, seasonCacheKey, raw, configCacheTTL)
		}
	}
	return cfg
}

func (s *RiskService) invalidateCache(ctx context.Context, keys ...string) {
	if s.rdb == nil {
		return
	}
	s.rdb.Del(ctx, keys...)
}

// === 风险评估 ===

// Classify 按在段天数分级
func Classify(inStageDays float64, days entity.ThresholdDays) string {
	switch {
	case inStageDays >= float64(days.CriticalDays):
		return entity.RiskCritical
	case inStageDays >= float64(days.WarningDays):
		return entity.RiskWarning
	default:
		return entity.RiskNormal
	}
}

// AssessOrder 评估订单风险。在段时长取该阶段最新事件至今；
// 找不到事件时按normal处理（历史数据缺口不应制造告警）。
func (s *RiskService) AssessOrder(ctx context.Context, order *entity.Order) *RiskInfo {
	return s.assess(ctx, entity.EntityTypeOrder, order.ID, order.CurrentStage)
}

// AssessItem 评估行项风险。无阶段覆盖的行项跟随父订单的事件时间线。
func (s *RiskService) AssessItem(ctx context.Context, item *entity.OrderItem, order *entity.Order) *RiskInfo {
	stage := entity.EffectiveStage(item, order)
	if item.CurrentStage != nil && *item.CurrentStage != "" {
		return s.assess(ctx, entity.EntityTypeItem, item.ID, stage)
	}
	return s.assess(ctx, entity.EntityTypeOrder, order.ID, stage)
}

func (s *RiskService) assess(ctx context.Context, entityType, entityID, stage string) *RiskInfo {
	now := time.Now()
	days, adjusted := s.EffectiveThreshold(ctx, stage, now)
	info := &RiskInfo{
		Stage:          stage,
		Level:          entity.RiskNormal,
		WarningDays:    days.WarningDays,
		CriticalDays:   days.CriticalDays,
		SeasonAdjusted: adjusted,
	}

	event, err := s.eventRepo.FindLatestForStage(ctx, entityType, entityID, stage)
	if err != nil {
		return info
	}

	elapsed := now.Sub(event.CreatedAt)
	info.InStageSeconds = int64(elapsed.Seconds())
	info.InStageDays = elapsed.Hours() / 24
	info.TrackedSince = &event.CreatedAt
	info.Level = Classify(info.InStageDays, days)
	return info
}

// EstimateDelivery 推算预计交付日期：起点加上全部阶段的期望停留天数
// （各阶段取warning与critical的均值），制造阶段含季节性缓冲。
func (s *RiskService) EstimateDelivery(ctx context.Context, from time.Time) time.Time {
	eta := from
	for _, stage := range entity.Stages {
		days, _ := s.EffectiveThreshold(ctx, stage, from)
		mean := float64(days.WarningDays+days.CriticalDays) / 2
		eta = eta.Add(time.Duration(mean * 24 * float64(time.Hour)))
	}
	return eta
}

// === 配置管理（仅管理员，变更入审计） ===

// ThresholdView 阈值视图：默认值与覆盖合并后的生效配置
type ThresholdView struct {
	Stage        string `json:"stage"`
	WarningDays  int    `json:"warning_days"`
	CriticalDays int    `json:"critical_days"`
	Description  string `json:"description,omitempty"`
	IsDefault    bool   `json:"is_default"`
}

// ListThresholds 按管线顺序返回全部阶段的生效阈值
func (s *RiskService) ListThresholds(ctx context.Context) ([]ThresholdView, error) {
	configured, err := s.thresholdRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	byStage := make(map[string]*entity.StageThreshold, len(configured))
	for i := range configured {
		byStage[configured[i].Stage] = &configured[i]
	}

	views := make([]ThresholdView, 0, len(entity.Stages))
	for _, stage := range entity.Stages {
		if t, ok := byStage[stage]; ok {
			views = append(views, ThresholdView{
				Stage:        stage,
				WarningDays:  t.WarningDays,
				CriticalDays: t.CriticalDays,
				Description:  t.Description,
			})
			continue
		}
		d := entity.DefaultThresholds[stage]
		views = append(views, ThresholdView{
			Stage:        stage,
			WarningDays:  d.WarningDays,
			CriticalDays: d.CriticalDays,
			IsDefault:    true,
		})
	}
	return views, nil
}

// UpdateThreshold 更新阶段阈值。仅管理员，要求 0 < warning < critical。
func (s *RiskService) UpdateThreshold(ctx context.Context, stageInput string, warningDays, criticalDays int, description string, actor Actor) (*entity.StageThreshold, error) {
	if !actor.IsAdmin() {
		return nil, policyErr("updating thresholds requires the %s role", AdminRole)
	}
	stage, ok := entity.NormalizeStage(stageInput)
	if !ok {
		return nil, validationErr("unknown stage %q", stageInput)
	}
	if warningDays <= 0 {
		return nil, validationErr("warning_days must be greater than zero")
	}
	if warningDays >= criticalDays {
		return nil, validationErr("warning_days (%d) must be less than critical_days (%d)", warningDays, criticalDays)
	}

	old := s.baseThreshold(ctx, stage)
	t := &entity.StageThreshold{
		Stage:        stage,
		WarningDays:  warningDays,
		CriticalDays: criticalDays,
		Description:  description,
		UpdatedBy:    actor.Name,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.thresholdRepo.Upsert(ctx, tx, t); err != nil {
			return err
		}
		var changes entity.FieldChanges
		if c, dirty := DiffField("warning_days", old.WarningDays, warningDays); dirty {
			changes = append(changes, c)
		}
		if c, dirty := DiffField("critical_days", old.CriticalDays, criticalDays); dirty {
			changes = append(changes, c)
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeThreshold, stage, "", entity.ActionConfigUpdate, changes, nil, actor)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, thresholdCacheKeyPrefix+stage)
	return t, nil
}

// GetSeason 返回当前季节性缓冲配置，未配置返回nil
func (s *RiskService) GetSeason(ctx context.Context) *SeasonConfig {
	return s.seasonConfig(ctx)
}

// UpdateSeason 更新季节性缓冲配置。仅管理员。
func (s *RiskService) UpdateSeason(ctx context.Context, cfg *SeasonConfig, actor Actor) error {
	if !actor.IsAdmin() {
		return policyErr("updating the season window requires the %s role", AdminRole)
	}
	if cfg.BufferDays < 0 {
		return validationErr("buffer_days cannot be negative")
	}
	if _, err := entity.NewSeasonWindow(cfg.Start, cfg.End, cfg.BufferDays); err != nil {
		return validationErr("%v", err)
	}

	old := s.seasonConfig(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range map[string]string{
			entity.SettingSeasonStart:      cfg.Start,
			entity.SettingSeasonEnd:        cfg.End,
			entity.SettingSeasonBufferDays: fmt.Sprintf("%d", cfg.BufferDays),
		} {
			if err := s.thresholdRepo.SetSetting(ctx, tx, key, value, actor.Name); err != nil {
				return err
			}
		}

		var changes entity.FieldChanges
		oldStart, oldEnd, oldBuffer := "", "", ""
		if old != nil {
			oldStart, oldEnd, oldBuffer = old.Start, old.End, fmt.Sprintf("%d", old.BufferDays)
		}
		for _, pair := range []struct {
			field    string
			from, to string
		}{
			{entity.SettingSeasonStart, oldStart, cfg.Start},
			{entity.SettingSeasonEnd, oldEnd, cfg.End},
			{entity.SettingSeasonBufferDays, oldBuffer, fmt.Sprintf("%d", cfg.BufferDays)},
		} {
			if c, dirty := DiffField(pair.field, pair.from, pair.to); dirty {
				changes = append(changes, c)
			}
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeSetting, "season", "", entity.ActionConfigUpdate, changes, nil, actor)
	})
	if err != nil {
		return err
	}

	s.invalidateCache(ctx, seasonCacheKey)
	return nil
}

// AtRiskOrder 风险看板行
type AtRiskOrder struct {
	Order entity.Order `json:"order"`
	Risk  *RiskInfo    `json:"risk"`
}

// ListAtRisk 扫描全部未完结订单，返回warning/critical的订单，critical在前。
// 订单量在数千级，全表扫描可接受；更大规模再换物化视图。
func (s *RiskService) ListAtRisk(ctx context.Context) ([]AtRiskOrder, error) {
	orders, err := s.orderRepo.FindActive(ctx, []string{entity.StageCompleted, entity.StageFollowUp})
	if err != nil {
		return nil, err
	}

	result := make([]AtRiskOrder, 0)
	for i := range orders {
		info := s.AssessOrder(ctx, &orders[i])
		if info.Level == entity.RiskNormal {
			continue
		}
		result = append(result, AtRiskOrder{Order: orders[i], Risk: info})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Risk.Level != result[j].Risk.Level {
			return result[i].Risk.Level == entity.RiskCritical
		}
		return result[i].Risk.InStageDays > result[j].Risk.InStageDays
	})
	return result, nil
}
