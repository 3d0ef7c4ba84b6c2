package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/koopa0/system-design/14-update-vs-upsert/pkg/errors"
	"github.com/koopa0/system-design/14-update-vs-upsert/pkg/logger"
)

// Handler HTTP 請求處理器
type Handler struct {
	store  Store
	demo   *Demo
	logger *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(store Store, demo *Demo, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		demo:   demo,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈：恢復 -> 請求 ID -> 日誌 -> 業務處理
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.requestID(h.loggerMiddleware(handler)))
	}

	// API 路由
	mux.HandleFunc("POST /run-demo", wrap(h.runDemo))
	mux.HandleFunc("POST /clear-data", wrap(h.clearData))
	mux.HandleFunc("POST /insert-sample", wrap(h.insertSample))
	mux.HandleFunc("GET /list-contacts", wrap(h.listContacts))
	mux.HandleFunc("POST /upsert-contact", wrap(h.upsertContact))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /ready", wrap(h.ready))

	return mux
}

// 請求和響應結構
type upsertContactRequest struct {
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	City  string   `json:"city,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

type insertSampleResult struct {
	Bulk  BulkOutcome `json:"bulk"`
	Total int64       `json:"total"`
}

// runDemo 執行固定三步驟示範腳本
func (h *Handler) runDemo(w http.ResponseWriter, r *http.Request) {
	report, err := h.demo.Run(r.Context())
	if err != nil {
		h.respondError(w, r, err, "run demo failed")
		return
	}

	h.respondJSON(w, apiResponse{OK: true, Results: report})
}

// clearData 刪除所有聯絡人（不可復原）
func (h *Handler) clearData(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteAll(r.Context())
	if err != nil {
		h.respondError(w, r, err, "clear data failed")
		return
	}

	h.respondJSON(w, apiResponse{
		OK:     true,
		Result: map[string]bool{"deleted": deleted},
	})
}

// insertSample 批次 upsert 三筆固定樣本聯絡人
func (h *Handler) insertSample(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bulk, err := h.store.BulkUpsert(ctx, SampleContacts())
	if err != nil {
		h.respondError(w, r, err, "insert sample failed")
		return
	}

	total, err := h.store.CountAll(ctx)
	if err != nil {
		h.respondError(w, r, err, "count contacts failed")
		return
	}

	h.respondJSON(w, apiResponse{
		OK:     true,
		Result: insertSampleResult{Bulk: bulk, Total: total},
	})
}

// listContacts 分頁查詢聯絡人，支援 city 與 tag 的精確過濾
func (h *Handler) listContacts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parseInt64(query.Get("page"), 1)
	pageSize := parseInt64(query.Get("pageSize"), 10)

	filter := map[string]any{}
	if city := query.Get("city"); city != "" {
		filter["city"] = city
	}
	if tag := query.Get("tag"); tag != "" {
		// tags 是字串陣列，等值過濾即為元素包含
		filter["tags"] = tag
	}

	result, err := h.store.ListPage(r.Context(), filter, page, pageSize)
	if err != nil {
		h.respondError(w, r, err, "list contacts failed")
		return
	}

	h.respondJSON(w, apiResponse{OK: true, Result: result})
}

// upsertContact 依請求內容 upsert 單一聯絡人
func (h *Handler) upsertContact(w http.ResponseWriter, r *http.Request) {
	var req upsertContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErrorMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" {
		h.respondError(w, r, apperrors.ErrEmailRequired, "upsert contact rejected")
		return
	}

	set := map[string]any{}
	if req.Name != "" {
		set["name"] = req.Name
	}
	if req.City != "" {
		set["city"] = req.City
	}
	if req.Tags != nil {
		set["tags"] = req.Tags
	}

	// 未提供 tags 時給新文件一個預設標籤，既有文件不受影響
	insertOnly := map[string]any{}
	if req.Tags == nil {
		insertOnly["tags"] = []string{"Prospect"}
	}

	outcome, err := h.store.Upsert(r.Context(),
		map[string]any{"email": req.Email}, set, insertOnly)
	if err != nil {
		h.respondError(w, r, err, "upsert contact failed")
		return
	}

	h.respondJSON(w, apiResponse{OK: true, Result: outcome})
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// ready 就緒檢查：實際對資料庫發一次查詢
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.CountAll(r.Context()); err != nil {
		h.respondErrorMessage(w, "store not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Ready")
}

// 中間件
// requestID 為每個請求配置 ID 並放入上下文
func (h *Handler) requestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), uuid.NewString())
		next(w, r.WithContext(ctx))
	}
}

// loggerMiddleware 記錄請求日誌
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以捕獲狀態碼
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(ww, r)

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	}
}

// recoverer 恢復 panic
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("panic recovered", "error", err)
				h.respondErrorMessage(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// respondError 將傳播上來的錯誤轉為結構化 JSON 回應
//
// 這裡是錯誤轉換的唯一邊界：驗證錯誤對應 400，其餘一律 500，
// 完整原因進日誌，回應只帶適合呼叫端的訊息。
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status := http.StatusInternalServerError
	if apperrors.IsInvalidInput(err) {
		status = http.StatusBadRequest
	}

	h.logger.ErrorContext(r.Context(), logMsg, "error", err)
	h.respondErrorMessage(w, apperrors.Message(err), status)
}

func (h *Handler) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondErrorMessage(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(apiResponse{
		OK:    false,
		Error: message,
	}); err != nil {
		h.logger.Error("failed to encode error response", "error", err, "message", message)
	}
}

// parseInt64 解析查詢參數，無法解析時回傳預設值
func parseInt64(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

// responseWriter 包裝以捕獲狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}
