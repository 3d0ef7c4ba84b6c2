// Package testutils 提供測試用的共用工具和輔助函數
//
// 本套件實作了測試容器（testcontainers）的管理，包括：
//   - MongoDB 測試容器
//   - 測試資料清理
//   - 記憶體版 Store mock
//
// 測試容器會在測試結束時自動清理。
package testutils

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// TestEnvironment 封裝測試環境
type TestEnvironment struct {
	Client         *mongo.Client
	Collection     *mongo.Collection
	MongoContainer tc.Container
	MongoURI       string
	Logger         *slog.Logger
	ctx            context.Context
}

// SetupTestEnvironment 設置完整的測試環境
//
// 這個函數會：
//  1. 啟動 MongoDB 容器
//  2. 建立客戶端並驗證連線
//  3. 註冊清理函數
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupTestEnvironment(t)
//	    // 使用 env.Collection
//	}
func SetupTestEnvironment(t testing.TB) *TestEnvironment {
	t.Helper()

	ctx := context.Background()
	env := &TestEnvironment{
		ctx: ctx,
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn, // 測試時減少日誌噪音
		})),
	}

	// 啟動 MongoDB 容器
	mongoContainer, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start mongodb container: %v", err)
	}
	env.MongoContainer = mongoContainer

	// 獲取連接字串
	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get mongodb connection string: %v", err)
	}
	env.MongoURI = uri

	// 建立客戶端，連線池與正式環境相同的小固定上限
	cfg := DefaultTestConfig()
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(cfg.Mongo.MaxPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	env.Client, err = mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		t.Fatalf("failed to connect to mongodb: %v", err)
	}

	// 驗證連接
	if err := env.Client.Ping(connectCtx, readpref.Primary()); err != nil {
		t.Fatalf("failed to ping mongodb: %v", err)
	}

	env.Collection = env.Client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)

	// 註冊清理
	t.Cleanup(func() {
		env.Cleanup()
	})

	return env
}

// Cleanup 清理測試環境
func (env *TestEnvironment) Cleanup() {
	ctx := context.Background()

	if env.Client != nil {
		_ = env.Client.Disconnect(ctx)
	}

	if env.MongoContainer != nil {
		_ = env.MongoContainer.Terminate(ctx)
	}
}

// ResetCollection 清空聯絡人集合（用於測試之間的清理）
func (env *TestEnvironment) ResetCollection(t testing.TB) {
	t.Helper()

	if _, err := env.Collection.DeleteMany(env.ctx, bson.M{}); err != nil {
		t.Fatalf("failed to reset collection: %v", err)
	}
}

// CountDocuments 回傳集合中的文件總數
func (env *TestEnvironment) CountDocuments(t testing.TB) int64 {
	t.Helper()

	total, err := env.Collection.CountDocuments(env.ctx, bson.M{})
	if err != nil {
		t.Fatalf("failed to count documents: %v", err)
	}
	return total
}
