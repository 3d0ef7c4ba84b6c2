package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/koopa0/system-design/14-update-vs-upsert/internal"
	"github.com/koopa0/system-design/14-update-vs-upsert/pkg/logger"
)

func main() {
	// 載入配置
	config, err := internal.LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 設定日誌
	log := logger.Init(config.Log.Level, config.Log.Format)

	// 連接 MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), config.Mongo.ConnectTimeout.Std())
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(config.MongoURI()).
		SetMaxPoolSize(config.Mongo.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		log.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error("failed to disconnect mongodb", "error", err)
		}
	}()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Error("failed to ping mongodb", "error", err)
		os.Exit(1)
	}

	// 建立存取閘道，新集合必須先確保 email 唯一索引
	coll := client.Database(config.Mongo.Database).Collection(config.Mongo.Collection)
	store := internal.NewMongoStore(coll, log)

	if err := store.EnsureUniqueIndex(ctx); err != nil {
		// 索引定義衝突屬於啟動階段的致命錯誤，不嘗試恢復
		log.Error("failed to ensure unique index", "error", err)
		os.Exit(1)
	}

	// 創建示範腳本與處理器
	demo := internal.NewDemo(store, log)
	handler := internal.NewHandler(store, demo, log)

	// 設定 HTTP 伺服器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  config.Server.ReadTimeout.Std(),
		WriteTimeout: config.Server.WriteTimeout.Std(),
		IdleTimeout:  120 * time.Second,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", config.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		// 給予 30 秒時間完成當前請求
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown server", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("failed to force close server", "error", closeErr)
			}
		}
	}

	log.Info("server stopped")
}
