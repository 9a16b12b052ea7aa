package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verifier/internal/model"
)

func TestInitDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "license.db")
	require.NoError(t, InitDB(path))
	defer Close()

	for _, m := range Models {
		assert.True(t, DB.Migrator().HasTable(m))
	}

	act := &model.Activation{ActivationID: "a1", Customer: "Acme", Fingerprint: "fp", License: "x.y.z", Status: model.ActivationActive}
	require.NoError(t, DB.Create(act).Error)

	var got model.Activation
	require.NoError(t, DB.Where("activation_id = ?", "a1").First(&got).Error)
	assert.True(t, got.IsActive())
}

func TestInitTestDBIsEmpty(t *testing.T) {
	InitTestDB()
	defer CleanTestDB()

	var n int64
	require.NoError(t, DB.Model(&model.Activation{}).Count(&n).Error)
	assert.Zero(t, n)
}
