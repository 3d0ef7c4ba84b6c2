package internal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-update-vs-upsert/internal"
	"github.com/koopa0/system-design/14-update-vs-upsert/internal/testutils"
)

// TestDemo_Run 測試示範腳本在全新資料上的完整報告
func TestDemo_Run(t *testing.T) {
	store := testutils.NewMockStore()
	demo := internal.NewDemo(store, testLogger())

	report, err := demo.Run(context.Background())
	require.NoError(t, err)

	// 步驟 A：種子文件存在且 city 從 Chennai 改為 Chennai (Adyar)
	assert.Equal(t, int64(1), report.UpdateExisting.Matched)
	assert.Equal(t, int64(1), report.UpdateExisting.Modified)
	assert.Nil(t, report.UpdateExisting.UpsertedID)

	// 步驟 B：條件更新碰不到任何文件，也不新增
	assert.Equal(t, int64(0), report.UpdateMissingNoUpsert.Matched)
	assert.Equal(t, int64(0), report.UpdateMissingNoUpsert.Modified)
	assert.Nil(t, report.UpdateMissingNoUpsert.UpsertedID)

	// 步驟 C：upsert 建立了新文件
	assert.Equal(t, int64(0), report.UpsertMissing.Matched)
	assert.NotNil(t, report.UpsertMissing.UpsertedID)

	// 快照：兩筆文件依 email 升冪
	require.Len(t, report.FinalDocs, 2)
	assert.Equal(t, "aarti@shade.org.in", report.FinalDocs[0].Email)
	assert.Equal(t, "missing.demo@example.org", report.FinalDocs[1].Email)
	assert.Equal(t, "Chennai (Adyar)", report.FinalDocs[0].City)
	assert.Equal(t, []string{"Prospect"}, report.FinalDocs[1].Tags)
}

// TestDemo_RunTwice 測試重複執行時的冪等行為
//
// 第二次執行時 city 已是目標值，modified=0 是正確行為而非錯誤；
// 上次建立的文件還在，步驟 C 變成單純的更新。
func TestDemo_RunTwice(t *testing.T) {
	store := testutils.NewMockStore()
	demo := internal.NewDemo(store, testLogger())

	_, err := demo.Run(context.Background())
	require.NoError(t, err)

	report, err := demo.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.UpdateExisting.Matched)
	assert.Equal(t, int64(0), report.UpdateExisting.Modified)

	assert.Equal(t, int64(1), report.UpsertMissing.Matched)
	assert.Nil(t, report.UpsertMissing.UpsertedID)

	assert.Len(t, report.FinalDocs, 2)
}

// TestDemo_AbortsOnError 測試任一步驟失敗即中止腳本
func TestDemo_AbortsOnError(t *testing.T) {
	store := testutils.NewMockStore()
	store.ShouldFailNext = true
	store.FailError = errors.New("store down")

	demo := internal.NewDemo(store, testLogger())

	_, err := demo.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "store down")

	// 種子 upsert 失敗後，後續步驟完全沒有執行
	assert.Equal(t, int32(0), store.ConditionalUpdateCalls.Load())
	assert.Equal(t, int32(0), store.ListPageCalls.Load())
}

// TestDemo_RunAgainstMongo 以真實 MongoDB 驗證完整腳本
func TestDemo_RunAgainstMongo(t *testing.T) {
	env := testutils.SetupTestEnvironment(t)
	store := newTestStore(t, env)
	demo := internal.NewDemo(store, env.Logger)

	report, err := demo.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.UpdateExisting.Matched)
	assert.Equal(t, int64(1), report.UpdateExisting.Modified)

	assert.Equal(t, int64(0), report.UpdateMissingNoUpsert.Matched)
	assert.Nil(t, report.UpdateMissingNoUpsert.UpsertedID)

	require.NotNil(t, report.UpsertMissing.UpsertedID)
	assert.Equal(t, int64(2), env.CountDocuments(t))

	require.Len(t, report.FinalDocs, 2)
	assert.Equal(t, "aarti@shade.org.in", report.FinalDocs[0].Email)
	assert.Equal(t, "Chennai (Adyar)", report.FinalDocs[0].City)
}
