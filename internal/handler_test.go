package internal_test

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-update-vs-upsert/internal"
	"github.com/koopa0/system-design/14-update-vs-upsert/internal/testutils"
)

// testLogger 測試用的安靜記錄器
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// newTestHandler 以記憶體 mock 建立路由
func newTestHandler() (*testutils.MockStore, http.Handler) {
	store := testutils.NewMockStore()
	demo := internal.NewDemo(store, testLogger())
	handler := internal.NewHandler(store, demo, testLogger())
	return store, handler.Routes()
}

// 測試回應信封
type envelope struct {
	OK      bool             `json:"ok"`
	Result  map[string]any   `json:"result"`
	Results *internal.Report `json:"results"`
	Error   string           `json:"error"`
}

// TestHandler_RunDemo 測試示範腳本端點
func TestHandler_RunDemo(t *testing.T) {
	_, routes := newTestHandler()

	recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/run-demo", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var resp envelope
	testutils.ParseJSONResponse(t, recorder, &resp)

	assert.True(t, resp.OK)
	require.NotNil(t, resp.Results)
	assert.Equal(t, int64(1), resp.Results.UpdateExisting.Matched)
	assert.Equal(t, int64(0), resp.Results.UpdateMissingNoUpsert.Matched)
	assert.NotNil(t, resp.Results.UpsertMissing.UpsertedID)
	assert.Len(t, resp.Results.FinalDocs, 2)
}

// TestHandler_ClearData 測試清空端點
func TestHandler_ClearData(t *testing.T) {
	store, routes := newTestHandler()
	store.Put(internal.Contact{Email: "a@x.com"})

	recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/clear-data", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var resp envelope
	testutils.ParseJSONResponse(t, recorder, &resp)

	assert.True(t, resp.OK)
	assert.Equal(t, true, resp.Result["deleted"])

	_, exists := store.Get("a@x.com")
	assert.False(t, exists)
}

// TestHandler_InsertSample 測試樣本資料端點與重複執行
func TestHandler_InsertSample(t *testing.T) {
	_, routes := newTestHandler()

	recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/insert-sample", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			Bulk  internal.BulkOutcome `json:"bulk"`
			Total int64                `json:"total"`
		} `json:"result"`
	}
	testutils.ParseJSONResponse(t, recorder, &resp)

	assert.True(t, resp.OK)
	assert.Equal(t, int64(3), resp.Result.Bulk.Upserts)
	assert.Equal(t, int64(3), resp.Result.Total)

	// 重複執行：全部命中、不新增
	recorder = testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/insert-sample", nil)
	testutils.ParseJSONResponse(t, recorder, &resp)

	assert.Equal(t, int64(3), resp.Result.Bulk.Matched)
	assert.Equal(t, int64(0), resp.Result.Bulk.Upserts)
	assert.Equal(t, int64(3), resp.Result.Total)
}

// TestHandler_ListContacts 測試分頁查詢端點
func TestHandler_ListContacts(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		expectedTotal int64
		expectedDocs  int
		expectedPage  int64
		expectedSize  int64
	}{
		{
			name:          "defaults",
			path:          "/list-contacts",
			expectedTotal: 3,
			expectedDocs:  3,
			expectedPage:  1,
			expectedSize:  10,
		},
		{
			name:          "page size clamped to 100",
			path:          "/list-contacts?pageSize=1000",
			expectedTotal: 3,
			expectedDocs:  3,
			expectedPage:  1,
			expectedSize:  100,
		},
		{
			name:          "page clamped to 1",
			path:          "/list-contacts?page=0",
			expectedTotal: 3,
			expectedDocs:  3,
			expectedPage:  1,
			expectedSize:  10,
		},
		{
			name:          "filter by city",
			path:          "/list-contacts?city=Pune",
			expectedTotal: 1,
			expectedDocs:  1,
			expectedPage:  1,
			expectedSize:  10,
		},
		{
			name:          "filter by tag",
			path:          "/list-contacts?tag=Customer",
			expectedTotal: 2,
			expectedDocs:  2,
			expectedPage:  1,
			expectedSize:  10,
		},
		{
			name:          "unknown city matches nothing",
			path:          "/list-contacts?city=Atlantis",
			expectedTotal: 0,
			expectedDocs:  0,
			expectedPage:  1,
			expectedSize:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, routes := newTestHandler()
			recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/insert-sample", nil)
			require.Equal(t, http.StatusOK, recorder.Code)

			recorder = testutils.MakeHTTPRequest(t, routes, http.MethodGet, tt.path, nil)
			assert.Equal(t, http.StatusOK, recorder.Code)

			var resp struct {
				OK     bool          `json:"ok"`
				Result internal.Page `json:"result"`
			}
			testutils.ParseJSONResponse(t, recorder, &resp)

			assert.True(t, resp.OK)
			assert.Equal(t, tt.expectedTotal, resp.Result.Total)
			assert.Len(t, resp.Result.Docs, tt.expectedDocs)
			assert.Equal(t, tt.expectedPage, resp.Result.Page)
			assert.Equal(t, tt.expectedSize, resp.Result.PageSize)
		})
	}
}

// TestHandler_UpsertContact 測試單筆 upsert 端點
func TestHandler_UpsertContact(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		setupFunc      func(store *testutils.MockStore)
		expectedStatus int
		expectedError  string
		checkFunc      func(t *testing.T, store *testutils.MockStore, result map[string]any)
	}{
		{
			name:           "email is required",
			requestBody:    `{"name": "Ravi"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "email is required",
		},
		{
			name:           "invalid JSON",
			requestBody:    `{invalid json}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "creates a new contact with default tag",
			requestBody:    `{"email": "new@x.com", "name": "New", "city": "Goa"}`,
			expectedStatus: http.StatusOK,
			checkFunc: func(t *testing.T, store *testutils.MockStore, result map[string]any) {
				assert.NotNil(t, result["upsertedId"])

				doc, ok := store.Get("new@x.com")
				require.True(t, ok)
				assert.Equal(t, "Goa", doc.City)
				assert.Equal(t, []string{"Prospect"}, doc.Tags)
			},
		},
		{
			name:        "updates an existing contact",
			requestBody: `{"email": "old@x.com", "city": "Kochi"}`,
			setupFunc: func(store *testutils.MockStore) {
				store.Put(internal.Contact{Email: "old@x.com", City: "Goa", Tags: []string{"Customer"}})
			},
			expectedStatus: http.StatusOK,
			checkFunc: func(t *testing.T, store *testutils.MockStore, result map[string]any) {
				assert.Equal(t, float64(1), result["matched"])
				assert.Nil(t, result["upsertedId"])

				doc, _ := store.Get("old@x.com")
				assert.Equal(t, "Kochi", doc.City)
				// 既有文件的 tags 不被預設值覆蓋
				assert.Equal(t, []string{"Customer"}, doc.Tags)
			},
		},
		{
			name:           "explicit tags are applied",
			requestBody:    `{"email": "tagged@x.com", "tags": ["VIP", "Supplier"]}`,
			expectedStatus: http.StatusOK,
			checkFunc: func(t *testing.T, store *testutils.MockStore, result map[string]any) {
				doc, ok := store.Get("tagged@x.com")
				require.True(t, ok)
				assert.Equal(t, []string{"VIP", "Supplier"}, doc.Tags)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, routes := newTestHandler()
			if tt.setupFunc != nil {
				tt.setupFunc(store)
			}

			recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/upsert-contact", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, recorder.Code)

			var resp envelope
			testutils.ParseJSONResponse(t, recorder, &resp)

			if tt.expectedError != "" {
				assert.False(t, resp.OK)
				assert.Equal(t, tt.expectedError, resp.Error)
				return
			}

			assert.True(t, resp.OK)
			if tt.checkFunc != nil {
				tt.checkFunc(t, store, resp.Result)
			}
		})
	}
}

// TestHandler_StoreFailure 測試存取層錯誤轉為 500 回應
func TestHandler_StoreFailure(t *testing.T) {
	store, routes := newTestHandler()
	store.ShouldFailNext = true
	store.FailError = errors.New("connection reset")

	recorder := testutils.MakeHTTPRequest(t, routes, http.MethodPost, "/clear-data", nil)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	var resp envelope
	testutils.ParseJSONResponse(t, recorder, &resp)

	assert.False(t, resp.OK)
	// 內部原因不洩漏到回應
	assert.Equal(t, "internal server error", resp.Error)
}

// TestHandler_Health 測試健康與就緒檢查
func TestHandler_Health(t *testing.T) {
	store, routes := newTestHandler()

	recorder := testutils.MakeHTTPRequest(t, routes, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = testutils.MakeHTTPRequest(t, routes, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	store.ShouldFailNext = true
	store.FailError = errors.New("store down")

	recorder = testutils.MakeHTTPRequest(t, routes, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}
