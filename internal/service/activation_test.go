package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verifier/internal/database"
	"license-verifier/internal/license"
	"license-verifier/internal/license/licensetest"
	"license-verifier/internal/model"
)

const testKeyPath = "/keys/public.pem"

var acmeClaims = map[string]any{
	"iss":         "Corp",
	"customer":    "Acme",
	"fingerprint": "FP-123",
	"iat":         1700000000,
	"exp":         1700003600,
}

type fixture struct {
	svc     *ActivationService
	metrics *Metrics
	token   string
	clock   *int64
}

func newFixture(t *testing.T, now int64) *fixture {
	t.Helper()
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)

	priv, _ := licensetest.RSAKeys(t)
	fs := afero.NewMemMapFs()
	licensetest.WritePublicKey(t, fs, testKeyPath, &priv.PublicKey)

	clock := now
	nowFn := func() time.Time { return time.Unix(clock, 0) }
	engine := license.NewEngine(
		license.WithKeySource(license.NewCachedKeySource(fs)),
		license.WithFingerprint(func() (string, error) { return "FP-123", nil }),
		license.WithClock(nowFn),
	)
	metrics := NewMetrics()
	return &fixture{
		svc:     NewActivationService(engine, testKeyPath, WithMetrics(metrics), WithNow(nowFn)),
		metrics: metrics,
		token:   licensetest.Sign(t, jwt.SigningMethodPS256, priv, acmeClaims),
		clock:   &clock,
	}
}

var meta = RequestMeta{IP: "127.0.0.1", UserAgent: "test"}

func countRows(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	db := database.DB.Model(m)
	if query != "" {
		db = db.Where(query, args...)
	}
	require.NoError(t, db.Count(&n).Error)
	return n
}

func TestActivate(t *testing.T) {
	f := newFixture(t, 1700003000)

	act, res, err := f.svc.Activate("  "+f.token+"\n", meta)
	require.NoError(t, err)
	require.True(t, res.Accepted())
	require.NotNil(t, act)

	assert.NotEmpty(t, act.ActivationID)
	assert.Equal(t, "Acme", act.Customer)
	assert.Equal(t, "Corp", act.Issuer)
	assert.Equal(t, "FP-123", act.Fingerprint)
	assert.Equal(t, f.token, act.License)
	assert.Equal(t, int64(1700003600), act.ExpiresAt.Unix())
	assert.True(t, act.IsActive())

	assert.Equal(t, int64(1), countRows(t, &model.Activation{}, "status = ?", model.ActivationActive))
	assert.Equal(t, int64(1), countRows(t, &model.VerificationRecord{}, "code = ? AND activation_id = ?", 0, act.ActivationID))
	assert.Equal(t, int64(1), countRows(t, &model.OperationLog{}, "action = ?", "activate"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.verifications.WithLabelValues(ActionActivate, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.active))
}

func TestActivateRejected(t *testing.T) {
	f := newFixture(t, 1700003000)

	tests := []struct {
		name string
		text string
		want license.Code
	}{
		{name: "garbage", text: "not a license", want: license.CodeInvalidLicense},
		{name: "tampered", text: f.token[:len(f.token)-4] + "AAAA", want: license.CodeInvalidLicense},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, res, err := f.svc.Activate(tt.text, meta)
			require.NoError(t, err)
			assert.Nil(t, act)
			assert.Equal(t, tt.want, res.Code)
		})
	}

	assert.Equal(t, int64(0), countRows(t, &model.Activation{}, ""))
	assert.Equal(t, int64(2), countRows(t, &model.VerificationRecord{}, "code = ?", int(license.CodeInvalidLicense)))
}

func TestActivateExpiredLicense(t *testing.T) {
	f := newFixture(t, 1700003660)
	act, res, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)
	assert.Nil(t, act)
	assert.Equal(t, license.CodeExpired, res.Code)
}

func TestActivateReplacesPrevious(t *testing.T) {
	f := newFixture(t, 1700003000)

	first, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)
	second, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)
	assert.NotEqual(t, first.ActivationID, second.ActivationID)

	var stored model.Activation
	require.NoError(t, database.DB.Where("activation_id = ?", first.ActivationID).First(&stored).Error)
	assert.Equal(t, model.ActivationReplaced, stored.Status)
	assert.Equal(t, int64(1), countRows(t, &model.Activation{}, "status = ?", model.ActivationActive))

	history, err := f.svc.History()
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCurrent(t *testing.T) {
	f := newFixture(t, 1700003000)

	_, _, err := f.svc.Current(ActionStatus, meta)
	assert.ErrorIs(t, err, ErrNotActivated)

	act, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	got, res, err := f.svc.Current(ActionStatus, meta)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, act.ActivationID, got.ActivationID)

	// 跨过到期分钟后再次检查
	*f.clock = 1700003660
	got, res, err = f.svc.Current(ActionStatus, meta)
	require.NoError(t, err)
	assert.Equal(t, license.CodeExpired, res.Code)
	assert.Equal(t, act.ActivationID, got.ActivationID)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.active))

	var stored model.Activation
	require.NoError(t, database.DB.Where("activation_id = ?", act.ActivationID).First(&stored).Error)
	assert.Equal(t, model.ActivationExpired, stored.Status)
	assert.Equal(t, int64(1700003660), stored.LastCheckedAt.Unix())

	// 已标记过期后仍报告过期，而不是未激活
	got, res, err = f.svc.Current(ActionStatus, meta)
	require.NoError(t, err)
	assert.Equal(t, license.CodeExpired, res.Code)
	assert.Equal(t, act.ActivationID, got.ActivationID)
	assert.Equal(t, model.ActivationExpired, got.Status)
}

func TestCurrentAfterExpirySweep(t *testing.T) {
	f := newFixture(t, 1700003000)
	act, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	*f.clock = 1700003660
	n, err := f.svc.ExpireOverdue()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, res, err := f.svc.Current(ActionGuard, meta)
	require.NoError(t, err)
	assert.Equal(t, license.CodeExpired, res.Code)
	assert.Equal(t, act.ActivationID, got.ActivationID)

	// 过期的许可证可以停用，停用后才是未激活
	_, err = f.svc.Deactivate(ActorAdmin)
	require.NoError(t, err)
	_, _, err = f.svc.Current(ActionGuard, meta)
	assert.ErrorIs(t, err, ErrNotActivated)
}

func TestActivateReplacesExpired(t *testing.T) {
	f := newFixture(t, 1700003000)
	first, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	*f.clock = 1700003660
	_, res, err := f.svc.Current(ActionStatus, meta)
	require.NoError(t, err)
	require.Equal(t, license.CodeExpired, res.Code)

	*f.clock = 1700003000
	second, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	var stored model.Activation
	require.NoError(t, database.DB.Where("activation_id = ?", first.ActivationID).First(&stored).Error)
	assert.Equal(t, model.ActivationReplaced, stored.Status)

	got, res, err := f.svc.Current(ActionStatus, meta)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, second.ActivationID, got.ActivationID)
}

func TestGuardRecords(t *testing.T) {
	f := newFixture(t, 1700003000)
	_, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	guardRows := func() int64 {
		return countRows(t, &model.VerificationRecord{}, "action = ?", ActionGuard)
	}

	// 成功不落库
	for i := 0; i < 5; i++ {
		_, res, err := f.svc.Current(ActionGuard, meta)
		require.NoError(t, err)
		require.True(t, res.Accepted())
	}
	assert.Equal(t, int64(0), guardRows())

	// 同一拒绝结果一分钟内只记一次
	*f.clock = 1700003660
	for i := 0; i < 5; i++ {
		_, _, err := f.svc.Current(ActionGuard, meta)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), guardRows())

	*f.clock = 1700003720
	_, _, err = f.svc.Current(ActionGuard, meta)
	require.NoError(t, err)
	assert.Equal(t, int64(2), guardRows())

	// 指标仍按每次请求计数
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.verifications.WithLabelValues(ActionGuard, "success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(f.metrics.verifications.WithLabelValues(ActionGuard, "expired")))
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t, 1700003000)

	_, err := f.svc.Deactivate(ActorAdmin)
	assert.ErrorIs(t, err, ErrNotActivated)

	act, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	got, err := f.svc.Deactivate(ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, act.ActivationID, got.ActivationID)
	assert.Equal(t, model.ActivationDeactivated, got.Status)

	_, _, err = f.svc.Current(ActionGuard, meta)
	assert.ErrorIs(t, err, ErrNotActivated)

	logs, total, err := GetOperationLogs("deactivate", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, ActorAdmin, logs[0].Actor)
	assert.Equal(t, act.ActivationID, logs[0].TargetID)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t, 1700003000)
	_, _, err := f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	// 同一分钟内不算过期
	*f.clock = 1700003639
	n, err := f.svc.ExpireOverdue()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	*f.clock = 1700003640
	n, err = f.svc.ExpireOverdue()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), countRows(t, &model.Activation{}, "status = ?", model.ActivationExpired))
	assert.Equal(t, int64(1), countRows(t, &model.OperationLog{}, "action = ? AND actor = ?", "expire", ActorSystem))
}

func TestGetVerificationRecords(t *testing.T) {
	f := newFixture(t, 1700003000)
	_, _, err := f.svc.Activate("x.y.z", meta)
	require.NoError(t, err)
	_, _, err = f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	records, total, err := GetVerificationRecords(1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 1)
	assert.Equal(t, "success", records[0].Result)
	assert.Equal(t, "Acme", records[0].Customer)
	assert.Equal(t, "127.0.0.1", records[0].IPAddress)
}

func TestGetStatistics(t *testing.T) {
	f := newFixture(t, 1700003000)
	_, _, err := f.svc.Activate("garbage", meta)
	require.NoError(t, err)
	_, _, err = f.svc.Activate(f.token, meta)
	require.NoError(t, err)

	from := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	stats, err := GetStatistics(from, to, time.Unix(1700003000, 0))
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalChecks)
	assert.Equal(t, int64(1), stats.AcceptedChecks)
	assert.Equal(t, 0.5, stats.GetSuccessRate())
	assert.Equal(t, int64(1), stats.GetChecksByResult("invalid_license"))
	assert.Equal(t, int64(1), stats.GetChecksByResult("success"))
	assert.Equal(t, int64(1), stats.ActiveActivations)
	assert.Equal(t, int64(1), stats.ExpiringActivations)

	day := stats.GetDailyChecksByDate(from)
	require.NotNil(t, day)
	assert.Equal(t, int64(2), day.Total)
	assert.Equal(t, int64(1), day.Accepted)

	empty, err := GetStatistics(from.AddDate(0, 1, 0), to.AddDate(0, 1, 0), time.Unix(1700003000, 0))
	require.NoError(t, err)
	assert.Zero(t, empty.TotalChecks)
	assert.Zero(t, empty.GetSuccessRate())
}
