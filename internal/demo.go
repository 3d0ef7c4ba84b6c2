package internal

import (
	"context"
	"fmt"
	"log/slog"
)

// 示範腳本使用的固定聯絡人
const (
	// seedEmail 步驟 A 的更新目標，由種子 upsert 保證存在
	seedEmail = "aarti@shade.org.in"

	// missingEmail 保證不存在的過濾目標，步驟 B、C 共用
	missingEmail = "missing.demo@example.org"
)

// Demo 固定三步驟的示範腳本協調器
//
// 腳本依序執行：種子 upsert（結果不列入報告）、更新既有文件、
// 對不存在的文件做條件更新、對同一目標做 upsert，最後取完整快照。
// 任一步驟失敗即中止後續步驟，已完成步驟的效果不回滾。
type Demo struct {
	store  Store
	logger *slog.Logger
}

// NewDemo 創建示範腳本協調器
func NewDemo(store Store, logger *slog.Logger) *Demo {
	return &Demo{
		store:  store,
		logger: logger,
	}
}

// Run 執行示範腳本並組裝報告
func (d *Demo) Run(ctx context.Context) (*Report, error) {
	// 種子：確保步驟 A 有更新目標，結果不列入報告
	_, err := d.store.Upsert(ctx,
		map[string]any{"email": seedEmail},
		nil,
		map[string]any{
			"name": "Aarti",
			"city": "Chennai",
			"tags": []string{"Customer"},
		})
	if err != nil {
		return nil, fmt.Errorf("seed contact: %w", err)
	}

	report := &Report{}

	// 步驟 A：更新既有文件。matched 必為 1；modified 只在 city
	// 實際改變時為 1，重複執行同樣的更新會得到 modified=0
	report.UpdateExisting, err = d.store.ConditionalUpdate(ctx,
		map[string]any{"email": seedEmail},
		map[string]any{"city": "Chennai (Adyar)"})
	if err != nil {
		return nil, fmt.Errorf("update existing: %w", err)
	}

	// 步驟 B：對不存在的文件做條件更新，不帶 upsert。
	// 預期 matched=0, modified=0，證明條件更新絕不新增文件
	report.UpdateMissingNoUpsert, err = d.store.ConditionalUpdate(ctx,
		map[string]any{"email": missingEmail},
		map[string]any{"city": "Pune"})
	if err != nil {
		return nil, fmt.Errorf("update missing: %w", err)
	}

	// 步驟 C：對同一個不存在的目標做 upsert。
	// 第一次執行會新增文件並回傳 upsertedId
	report.UpsertMissing, err = d.store.Upsert(ctx,
		map[string]any{"email": missingEmail},
		map[string]any{"city": "Pune"},
		map[string]any{"tags": []string{"Prospect"}})
	if err != nil {
		return nil, fmt.Errorf("upsert missing: %w", err)
	}

	// 快照：依 email 升冪取得所有聯絡人，必要時逐頁撈取
	report.FinalDocs = []Contact{}
	for pageNum := int64(1); ; pageNum++ {
		page, err := d.store.ListPage(ctx, nil, pageNum, maxPageSize)
		if err != nil {
			return nil, fmt.Errorf("final snapshot: %w", err)
		}
		report.FinalDocs = append(report.FinalDocs, page.Docs...)
		if len(page.Docs) == 0 || int64(len(report.FinalDocs)) >= page.Total {
			break
		}
	}

	d.logger.Info("demo completed",
		"update_existing_modified", report.UpdateExisting.Modified,
		"upsert_created", report.UpsertMissing.UpsertedID != nil,
		"final_docs", len(report.FinalDocs),
	)

	return report, nil
}

// SampleContacts /insert-sample 寫入的三筆固定樣本
//
// 內容一律是僅建立欄位，重複執行不會覆蓋既有文件上的修改。
func SampleContacts() []BulkItem {
	return []BulkItem{
		{
			Filter: map[string]any{"email": "ravi@cabs.example.in"},
			InsertOnly: map[string]any{
				"name": "Ravi",
				"city": "Bengaluru",
				"tags": []string{"Customer"},
			},
		},
		{
			Filter: map[string]any{"email": "meera@crafts.example.in"},
			InsertOnly: map[string]any{
				"name": "Meera",
				"city": "Jaipur",
				"tags": []string{"Prospect"},
			},
		},
		{
			Filter: map[string]any{"email": "vikram@foundry.example.in"},
			InsertOnly: map[string]any{
				"name": "Vikram",
				"city": "Pune",
				"tags": []string{"Customer", "Supplier"},
			},
		},
	}
}
