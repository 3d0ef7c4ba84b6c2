// Package internal 包含 update 與 upsert 示範服務的核心業務邏輯
//
// 這個服務用來示範文件資料庫中兩種寫入語義的差異：
//   - 條件更新（conditional update）：只修改符合過濾條件的文件，絕不新增
//   - upsert：有符合的文件就修改，沒有就依過濾條件與提供的欄位建立新文件
//
// 核心由兩部分組成：
//   - ContactStore：聯絡人集合的存取閘道，維護 email 唯一索引
//   - Demo：固定三步驟的示範腳本，組裝結果報告
package internal

import "time"

// Contact 聯絡人文件，以 email 作為唯一鍵
type Contact struct {
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name,omitempty" json:"name,omitempty"`
	City      string    `bson:"city,omitempty" json:"city,omitempty"`
	Tags      []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// UpdateOutcome 單次條件更新或 upsert 的正規化結果
//
// UpsertedID 只在實際發生新增時才有值。
type UpdateOutcome struct {
	Matched    int64   `json:"matched"`
	Modified   int64   `json:"modified"`
	UpsertedID *string `json:"upsertedId,omitempty"`
}

// BulkOutcome 批次 upsert 的彙總結果
type BulkOutcome struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
	Upserts  int64 `json:"upserts"`
}

// Page 分頁查詢結果
type Page struct {
	Page     int64     `json:"page"`
	PageSize int64     `json:"pageSize"`
	Total    int64     `json:"total"`
	Docs     []Contact `json:"docs"`
}

// BulkItem 批次 upsert 的單一項目
//
// InsertOnly 中的欄位只在新增時寫入，之後的更新不會覆蓋。
type BulkItem struct {
	Filter     map[string]any
	InsertOnly map[string]any
}

// Report 示範腳本的完整報告
type Report struct {
	UpdateExisting        UpdateOutcome `json:"updateExisting"`
	UpdateMissingNoUpsert UpdateOutcome `json:"updateMissingNoUpsert"`
	UpsertMissing         UpdateOutcome `json:"upsertMissing"`
	FinalDocs             []Contact     `json:"finalDocs"`
}
