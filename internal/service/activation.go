package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"license-verifier/internal/database"
	"license-verifier/internal/license"
	"license-verifier/internal/model"
)

var ErrNotActivated = errors.New("no license activated")

// 守卫检查的拒绝结果同一结果码在此间隔内只落库一次，成功不落库
const guardRecordInterval = time.Minute

// currentStatuses 仍代表本机许可证的状态，过期记录继续参与校验以报告过期
var currentStatuses = []string{model.ActivationActive, model.ActivationExpired}

// 校验动作，写入 VerificationRecord.Action
const (
	ActionActivate = "activate"
	ActionStatus   = "status"
	ActionGuard    = "guard"
)

// Verifier is satisfied by *license.Engine.
type Verifier interface {
	Verify(licenseText, publicKeyPath string) license.Result
}

// RequestMeta 请求来源信息
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ActivationService 保存本机激活的许可证并在每次检查时重新校验
type ActivationService struct {
	verifier Verifier
	keyPath  string
	sheets   *SheetSyncService
	metrics  *Metrics
	now      func() time.Time

	guardMu   sync.Mutex
	guardCode license.Code
	guardAt   time.Time
}

type ActivationOption func(*ActivationService)

func WithSheetSync(s *SheetSyncService) ActivationOption {
	return func(a *ActivationService) { a.sheets = s }
}

func WithMetrics(m *Metrics) ActivationOption {
	return func(a *ActivationService) { a.metrics = m }
}

// WithNow overrides the clock used for stored timestamps and expiry sweeps.
func WithNow(now func() time.Time) ActivationOption {
	return func(a *ActivationService) { a.now = now }
}

func NewActivationService(v Verifier, publicKeyPath string, opts ...ActivationOption) *ActivationService {
	s := &ActivationService{
		verifier: v,
		keyPath:  publicKeyPath,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate 校验许可证，通过后替换当前激活记录。
// 校验失败不是错误：返回的 Result 携带失败分类，error 只表示存储失败。
func (s *ActivationService) Activate(licenseText string, meta RequestMeta) (*model.Activation, license.Result, error) {
	licenseText = strings.TrimSpace(licenseText)
	res := s.verifier.Verify(licenseText, s.keyPath)
	if !res.Accepted() {
		s.record(ActionActivate, res, "", "", meta)
		return nil, res, nil
	}

	now := s.now().UTC()
	p := res.Payload
	act := &model.Activation{
		ActivationID:  uuid.NewString(),
		Customer:      p.Customer,
		Issuer:        p.Issuer,
		Fingerprint:   p.Fingerprint,
		License:       licenseText,
		Status:        model.ActivationActive,
		IssuedAt:      p.IssuedTime(),
		ExpiresAt:     p.ExpiresTime(),
		ActivatedAt:   now,
		LastCheckedAt: now,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Activation{}).
			Where("status IN ?", currentStatuses).
			Update("status", model.ActivationReplaced).Error; err != nil {
			return err
		}
		return tx.Create(act).Error
	})
	if err != nil {
		return nil, res, fmt.Errorf("保存激活记录失败: %w", err)
	}

	s.record(ActionActivate, res, act.ActivationID, act.Customer, meta)
	s.metrics.SetActive(true)
	if err := LogOperation(ActorAPI, "activate", "activation", act.ActivationID, map[string]interface{}{
		"customer":   act.Customer,
		"expires_at": act.ExpiresAt,
	}); err != nil {
		log.Warn().Err(err).Msg("记录操作日志失败")
	}
	s.syncSheet(act)

	log.Info().Str("activation_id", act.ActivationID).Str("customer", act.Customer).Msg("许可证已激活")
	return act, res, nil
}

// current 最新一条未被替换或停用的激活记录
func current() (*model.Activation, error) {
	var act model.Activation
	err := database.DB.Where("status IN ?", currentStatuses).Order("activated_at DESC").Order("id DESC").First(&act).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotActivated
	}
	if err != nil {
		return nil, fmt.Errorf("查询激活记录失败: %w", err)
	}
	return &act, nil
}

// Current 重新校验当前激活的许可证。过期时顺带把记录标记为 expired，
// 之后的检查仍返回过期结果，直到重新激活或停用。
func (s *ActivationService) Current(action string, meta RequestMeta) (*model.Activation, license.Result, error) {
	found, err := current()
	if err != nil {
		if errors.Is(err, ErrNotActivated) {
			s.metrics.SetActive(false)
		}
		return nil, license.Result{}, err
	}
	act := found

	res := s.verifier.Verify(act.License, s.keyPath)
	s.record(action, res, act.ActivationID, act.Customer, meta)
	s.metrics.SetActive(res.Accepted())

	newlyExpired := res.Code == license.CodeExpired && act.Status == model.ActivationActive
	updates := map[string]interface{}{"last_checked_at": s.now().UTC()}
	if newlyExpired {
		updates["status"] = model.ActivationExpired
	}
	if err := database.DB.Model(act).Updates(updates).Error; err != nil {
		log.Warn().Err(err).Str("activation_id", act.ActivationID).Msg("更新检查时间失败")
	}
	if newlyExpired {
		act.Status = model.ActivationExpired
		s.syncSheet(act)
	}
	return act, res, nil
}

// Deactivate 停用当前许可证，已过期的也可以停用
func (s *ActivationService) Deactivate(actor string) (*model.Activation, error) {
	act, err := current()
	if err != nil {
		return nil, err
	}

	if err := database.DB.Model(&model.Activation{}).
		Where("status IN ?", currentStatuses).
		Update("status", model.ActivationDeactivated).Error; err != nil {
		return nil, fmt.Errorf("停用许可证失败: %w", err)
	}
	act.Status = model.ActivationDeactivated
	s.metrics.SetActive(false)

	if err := LogOperation(actor, "deactivate", "activation", act.ActivationID, map[string]interface{}{
		"customer": act.Customer,
	}); err != nil {
		log.Warn().Err(err).Msg("记录操作日志失败")
	}
	s.syncSheet(act)
	return act, nil
}

// History 列出所有激活记录，最新的在前
func (s *ActivationService) History() ([]model.Activation, error) {
	var acts []model.Activation
	if err := database.DB.Order("activated_at DESC").Order("id DESC").Find(&acts).Error; err != nil {
		return nil, err
	}
	return acts, nil
}

// ExpireOverdue 将已过期的 active 记录标记为 expired，按分钟截断比较，与校验规则一致
func (s *ActivationService) ExpireOverdue() (int64, error) {
	cutoff := s.now().UTC().Truncate(time.Minute)
	res := database.DB.Model(&model.Activation{}).
		Where("status = ? AND expires_at < ?", model.ActivationActive, cutoff).
		Update("status", model.ActivationExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.metrics.SetActive(false)
		if err := LogOperation(ActorSystem, "expire", "activation", "", map[string]interface{}{
			"count": res.RowsAffected,
		}); err != nil {
			log.Warn().Err(err).Msg("记录操作日志失败")
		}
	}
	return res.RowsAffected, nil
}

// StartExpiryChecker 定期清理过期激活，ctx 取消后退出
func (s *ActivationService) StartExpiryChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.ExpireOverdue()
				if err != nil {
					log.Error().Err(err).Msg("检查过期许可证失败")
					continue
				}
				if n > 0 {
					log.Info().Int64("count", n).Msg("已标记过期许可证")
				}
			}
		}
	}()
}

func (s *ActivationService) record(action string, res license.Result, activationID, customer string, meta RequestMeta) {
	s.metrics.Observe(action, res.Code)
	if action == ActionGuard && !s.shouldRecordGuard(res.Code) {
		return
	}

	rec := &model.VerificationRecord{
		ActivationID: activationID,
		Action:       action,
		Code:         int(res.Code),
		Result:       res.Code.String(),
		Customer:     customer,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		Timestamp:    s.now().UTC(),
	}
	if rec.Customer == "" && res.Payload != nil {
		rec.Customer = res.Payload.Customer
	}
	if err := database.DB.Create(rec).Error; err != nil {
		log.Warn().Err(err).Str("action", action).Msg("记录校验结果失败")
	}
	if !res.Accepted() {
		log.Warn().Str("action", action).Str("result", res.Code.String()).Err(res.Err).Msg("许可证校验未通过")
	}
}

// shouldRecordGuard 守卫成功不落库；拒绝结果变化或超过间隔时才落库
func (s *ActivationService) shouldRecordGuard(code license.Code) bool {
	if code == license.CodeSuccess {
		return false
	}
	now := s.now()
	s.guardMu.Lock()
	defer s.guardMu.Unlock()
	if code == s.guardCode && !s.guardAt.IsZero() && now.Sub(s.guardAt) < guardRecordInterval {
		return false
	}
	s.guardCode = code
	s.guardAt = now
	return true
}

func (s *ActivationService) syncSheet(act *model.Activation) {
	if s.sheets == nil {
		return
	}
	snapshot := *act
	go func() {
		if err := s.sheets.SyncActivation(&snapshot); err != nil {
			log.Error().Err(err).Str("activation_id", snapshot.ActivationID).Msg("同步Google Sheet失败")
		}
	}()
}

var resultMessages = map[license.Code]string{
	license.CodeSuccess:             "许可证有效",
	license.CodeInvalidPublicKey:    "公钥无效",
	license.CodeInvalidLicense:      "许可证无效",
	license.CodeExpired:             "许可证已过期",
	license.CodeFingerprintMismatch: "许可证不属于本机",
	license.CodeInternal:            "内部错误",
}

// ResultMessage 面向用户的结果描述
func ResultMessage(code license.Code) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return resultMessages[license.CodeInternal]
}
