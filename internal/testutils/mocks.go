package testutils

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-update-vs-upsert/internal"
)

// MockStore 實作 internal.Store 介面的記憶體版 mock
//
// 以 email 為鍵保存聯絡人，模擬條件更新與 upsert 的
// matched/modified/upsertedId 語義，供不需要容器的測試使用。
type MockStore struct {
	mu   sync.RWMutex
	docs map[string]internal.Contact

	// 記錄呼叫次數
	ConditionalUpdateCalls atomic.Int32
	UpsertCalls            atomic.Int32
	BulkUpsertCalls        atomic.Int32
	DeleteAllCalls         atomic.Int32
	ListPageCalls          atomic.Int32

	// 錯誤注入
	ShouldFailNext bool
	FailError      error

	nextID atomic.Int64
}

// NewMockStore 創建新的 MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		docs: make(map[string]internal.Contact),
	}
}

// failNext 消費一次性的注入錯誤
func (m *MockStore) failNext() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFailNext {
		m.ShouldFailNext = false
		return m.FailError
	}
	return nil
}

// EnsureUniqueIndex 記憶體版不需要索引，直接成功
func (m *MockStore) EnsureUniqueIndex(ctx context.Context) error {
	return m.failNext()
}

// ConditionalUpdate 只更新符合 filter 的文件
func (m *MockStore) ConditionalUpdate(ctx context.Context, filter, set map[string]any) (internal.UpdateOutcome, error) {
	m.ConditionalUpdateCalls.Add(1)
	if err := m.failNext(); err != nil {
		return internal.UpdateOutcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := internal.UpdateOutcome{}
	for email, doc := range m.docs {
		if !matches(doc, filter) {
			continue
		}
		outcome.Matched++
		if applySet(&doc, set) {
			outcome.Modified++
			doc.UpdatedAt = time.Now().UTC()
			m.docs[email] = doc
		}
	}

	return outcome, nil
}

// Upsert 更新符合 filter 的文件，沒有就建立
func (m *MockStore) Upsert(ctx context.Context, filter, set, insertOnly map[string]any) (internal.UpdateOutcome, error) {
	m.UpsertCalls.Add(1)
	if err := m.failNext(); err != nil {
		return internal.UpdateOutcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsertLocked(filter, set, insertOnly), nil
}

func (m *MockStore) upsertLocked(filter, set, insertOnly map[string]any) internal.UpdateOutcome {
	outcome := internal.UpdateOutcome{}

	for email, doc := range m.docs {
		if !matches(doc, filter) {
			continue
		}
		// 符合的文件只套用 set，insertOnly 欄位保持原值
		outcome.Matched++
		if applySet(&doc, set) {
			outcome.Modified++
			doc.UpdatedAt = time.Now().UTC()
			m.docs[email] = doc
		}
	}
	if outcome.Matched > 0 {
		return outcome
	}

	// 無符合：以 filter + set + insertOnly 建立新文件
	doc := internal.Contact{CreatedAt: time.Now().UTC()}
	applySet(&doc, filter)
	applySet(&doc, set)
	applySet(&doc, insertOnly)
	m.docs[doc.Email] = doc

	id := fmt.Sprintf("mock-%06d", m.nextID.Add(1))
	outcome.UpsertedID = &id
	return outcome
}

// BulkUpsert 逐項 upsert 並彙總計數
func (m *MockStore) BulkUpsert(ctx context.Context, items []internal.BulkItem) (internal.BulkOutcome, error) {
	m.BulkUpsertCalls.Add(1)
	if err := m.failNext(); err != nil {
		return internal.BulkOutcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bulk := internal.BulkOutcome{}
	for _, item := range items {
		outcome := m.upsertLocked(item.Filter, nil, item.InsertOnly)
		bulk.Matched += outcome.Matched
		bulk.Modified += outcome.Modified
		if outcome.UpsertedID != nil {
			bulk.Upserts++
		}
	}

	return bulk, nil
}

// DeleteAll 清空所有聯絡人
func (m *MockStore) DeleteAll(ctx context.Context) (bool, error) {
	m.DeleteAllCalls.Add(1)
	if err := m.failNext(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[string]internal.Contact)
	return true, nil
}

// ListPage 依 email 升冪排序的分頁查詢
func (m *MockStore) ListPage(ctx context.Context, filter map[string]any, page, pageSize int64) (internal.Page, error) {
	m.ListPageCalls.Add(1)
	if err := m.failNext(); err != nil {
		return internal.Page{}, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []internal.Contact{}
	for _, doc := range m.docs {
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Email < matched[j].Email
	})

	start := (page - 1) * pageSize
	end := start + pageSize
	total := int64(len(matched))
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return internal.Page{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Docs:     matched[start:end],
	}, nil
}

// CountAll 回傳聯絡人總數
func (m *MockStore) CountAll(ctx context.Context) (int64, error) {
	if err := m.failNext(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.docs)), nil
}

// Get 取出指定 email 的聯絡人（測試斷言用）
func (m *MockStore) Get(email string) (internal.Contact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[email]
	return doc, ok
}

// Put 直接放入一筆聯絡人（測試前置資料用）
func (m *MockStore) Put(doc internal.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[doc.Email] = doc
}

// matches 檢查文件是否符合過濾條件
//
// 支援 email、city 的等值比對與 tags 的元素包含比對，
// 與 MongoDB 對陣列欄位的等值過濾語義一致。
func matches(doc internal.Contact, filter map[string]any) bool {
	for key, value := range filter {
		switch key {
		case "email":
			if doc.Email != value {
				return false
			}
		case "city":
			if doc.City != value {
				return false
			}
		case "tags":
			tag, ok := value.(string)
			if !ok || !slices.Contains(doc.Tags, tag) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// applySet 套用欄位並回報是否有實際變更
func applySet(doc *internal.Contact, set map[string]any) bool {
	changed := false
	for key, value := range set {
		switch key {
		case "email":
			if v, ok := value.(string); ok && doc.Email != v {
				doc.Email = v
				changed = true
			}
		case "name":
			if v, ok := value.(string); ok && doc.Name != v {
				doc.Name = v
				changed = true
			}
		case "city":
			if v, ok := value.(string); ok && doc.City != v {
				doc.City = v
				changed = true
			}
		case "tags":
			if v, ok := value.([]string); ok && !slices.Equal(doc.Tags, v) {
				doc.Tags = v
				changed = true
			}
		}
	}
	return changed
}
