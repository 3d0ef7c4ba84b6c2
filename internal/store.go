package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/koopa0/system-design/14-update-vs-upsert/pkg/errors"
)

// 分頁參數的界限
const (
	minPageSize = 1
	maxPageSize = 100
)

// Store 聯絡人集合的存取閘道介面
//
// 所有讀寫都經過這個介面，方便在測試中以記憶體實作替換。
type Store interface {
	// EnsureUniqueIndex 建立 email 唯一索引（冪等）
	EnsureUniqueIndex(ctx context.Context) error

	// ConditionalUpdate 只更新符合 filter 的文件，絕不新增
	ConditionalUpdate(ctx context.Context, filter, set map[string]any) (UpdateOutcome, error)

	// Upsert 更新符合 filter 的文件，沒有符合就建立新文件
	Upsert(ctx context.Context, filter, set, insertOnly map[string]any) (UpdateOutcome, error)

	// BulkUpsert 無序批次 upsert，單項失敗不中斷其餘項目
	BulkUpsert(ctx context.Context, items []BulkItem) (BulkOutcome, error)

	// DeleteAll 刪除所有聯絡人，不可復原
	DeleteAll(ctx context.Context) (bool, error)

	// ListPage 依 email 升冪排序的分頁查詢
	ListPage(ctx context.Context, filter map[string]any, page, pageSize int64) (Page, error)

	// CountAll 回傳聯絡人總數
	CountAll(ctx context.Context) (int64, error)
}

// MongoStore 以 MongoDB 集合實作 Store
type MongoStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// NewMongoStore 創建聯絡人存取閘道
func NewMongoStore(coll *mongo.Collection, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		coll:   coll,
		logger: logger,
	}
}

// EnsureUniqueIndex 建立 email 唯一索引
//
// 冪等操作：索引已存在時直接成功。若集合上已有同欄位但非唯一的索引，
// 伺服器會回報索引定義衝突，這裡視為啟動階段的致命錯誤。
func (s *MongoStore) EnsureUniqueIndex(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	if _, err := s.coll.Indexes().CreateOne(ctx, model); err != nil {
		// 85: IndexOptionsConflict, 86: IndexKeySpecsConflict
		var srvErr mongo.ServerError
		if errors.As(err, &srvErr) && (srvErr.HasErrorCode(85) || srvErr.HasErrorCode(86)) {
			return apperrors.Wrap(err, apperrors.ErrCodeConstraintSetup, "conflicting index on email")
		}
		return s.storeErr(err, "create unique index")
	}

	return nil
}

// ConditionalUpdate 對符合 filter 的文件套用 set 欄位
//
// 零筆符合時回傳 matched=0, modified=0，這是正常結果而非錯誤。
// UpsertedID 永遠為空。
func (s *MongoStore) ConditionalUpdate(ctx context.Context, filter, set map[string]any) (UpdateOutcome, error) {
	res, err := s.coll.UpdateMany(ctx, bson.M(filter), bson.M{"$set": bson.M(set)})
	if err != nil {
		return UpdateOutcome{}, s.storeErr(err, "conditional update")
	}

	// updatedAt 只在欄位實際變更時補上時間戳，
	// 無變更的重複執行維持 modified=0 且不改動文件
	if res.ModifiedCount > 0 {
		if _, err := s.coll.UpdateMany(ctx, bson.M(filter),
			bson.M{"$currentDate": bson.M{"updatedAt": true}}); err != nil {
			return UpdateOutcome{}, s.storeErr(err, "stamp updatedAt")
		}
	}

	return normalizeResult(res), nil
}

// Upsert 更新符合 filter 的文件，沒有就建立
//
// set 每次都套用；insertOnly 只在建立新文件時寫入，
// 既有文件上的同名欄位保持原值。兩組欄位不得重疊。
func (s *MongoStore) Upsert(ctx context.Context, filter, set, insertOnly map[string]any) (UpdateOutcome, error) {
	update, err := buildUpsert(filter, set, insertOnly)
	if err != nil {
		return UpdateOutcome{}, err
	}

	res, err := s.coll.UpdateOne(ctx, bson.M(filter), update, options.Update().SetUpsert(true))
	if err != nil {
		return UpdateOutcome{}, s.storeErr(err, "upsert")
	}

	return normalizeResult(res), nil
}

// BulkUpsert 批次 upsert
//
// 無序執行：單一項目失敗不會中斷其餘項目。項目內容一律視為
// 僅建立欄位，重複執行不會覆蓋既有文件上的修改。
func (s *MongoStore) BulkUpsert(ctx context.Context, items []BulkItem) (BulkOutcome, error) {
	models := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		update, err := buildUpsert(item.Filter, nil, item.InsertOnly)
		if err != nil {
			return BulkOutcome{}, err
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M(item.Filter)).
			SetUpdate(update).
			SetUpsert(true))
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return BulkOutcome{}, s.storeErr(err, "bulk upsert")
	}

	return BulkOutcome{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserts:  res.UpsertedCount,
	}, nil
}

// DeleteAll 刪除集合中的所有聯絡人
func (s *MongoStore) DeleteAll(ctx context.Context) (bool, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return false, s.storeErr(err, "delete all")
	}

	s.logger.Info("cleared contacts", "deleted", res.DeletedCount)
	return true, nil
}

// ListPage 分頁查詢聯絡人
//
// page 以 1 起算並夾限至 ≥1；pageSize 夾限至 [1, 100]。
// 結果依 email 升冪排序，內部 _id 欄位排除在輸出之外。
func (s *MongoStore) ListPage(ctx context.Context, filter map[string]any, page, pageSize int64) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := bson.M(filter)
	if query == nil {
		query = bson.M{}
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return Page{}, s.storeErr(err, "count contacts")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "email", Value: 1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize).
		SetProjection(bson.M{"_id": 0})

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return Page{}, s.storeErr(err, "find contacts")
	}
	defer cursor.Close(ctx)

	docs := []Contact{}
	if err := cursor.All(ctx, &docs); err != nil {
		return Page{}, s.storeErr(err, "decode contacts")
	}

	return Page{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Docs:     docs,
	}, nil
}

// CountAll 回傳聯絡人總數
func (s *MongoStore) CountAll(ctx context.Context) (int64, error) {
	total, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, s.storeErr(err, "count contacts")
	}
	return total, nil
}

// buildUpsert 組裝 upsert 的更新文件
//
// set 與 insertOnly 的鍵不得重疊（伺服器會拒絕同一欄位同時出現在
// $set 與 $setOnInsert）。建立時間戳在呼叫端未提供時自動補上。
func buildUpsert(filter, set, insertOnly map[string]any) (bson.M, error) {
	for key := range set {
		if _, dup := insertOnly[key]; dup {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "set and insert-only fields overlap").
				WithDetails(fmt.Sprintf("field %q in both sets", key))
		}
	}

	now := time.Now().UTC()

	setDoc := bson.M{}
	for key, value := range set {
		setDoc[key] = value
	}
	if len(setDoc) > 0 {
		if _, ok := setDoc["updatedAt"]; !ok {
			setDoc["updatedAt"] = now
		}
	}

	insertDoc := bson.M{}
	for key, value := range insertOnly {
		insertDoc[key] = value
	}
	if _, ok := insertDoc["createdAt"]; !ok {
		insertDoc["createdAt"] = now
	}

	// 純 insert-only 的 upsert 不帶 $set，
	// 已存在的文件完全不被改動（modified=0）
	update := bson.M{"$setOnInsert": insertDoc}
	if len(setDoc) > 0 {
		update["$set"] = setDoc
	}

	return update, nil
}

// normalizeResult 將驅動程式的寫入結果轉為 UpdateOutcome
func normalizeResult(res *mongo.UpdateResult) UpdateOutcome {
	outcome := UpdateOutcome{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
	}

	if res.UpsertedID != nil {
		var id string
		if oid, ok := res.UpsertedID.(primitive.ObjectID); ok {
			id = oid.Hex()
		} else {
			id = fmt.Sprintf("%v", res.UpsertedID)
		}
		outcome.UpsertedID = &id
	}

	return outcome
}

// storeErr 將驅動程式錯誤分類並包裝
func (s *MongoStore) storeErr(err error, op string) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Wrap(err, apperrors.ErrCodeConstraintViolation, "duplicate email")
	case mongo.IsNetworkError(err) || mongo.IsTimeout(err):
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "document store unavailable")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, op+" failed")
	}
}
