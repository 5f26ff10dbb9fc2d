// Package web exposes the dashboard REST API.
package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vzakharchenko/telegram-budget-bot/internal/budget"
	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
	"github.com/vzakharchenko/telegram-budget-bot/internal/storage"
)

// Server wires the REST handlers to storage and the OCR orchestrator.
type Server struct {
	store        storage.Store
	orchestrator *ocr.Orchestrator
	engine       *gin.Engine
}

// NewServer builds the router. The registry decides which OCR providers the
// receipt endpoint dispatches to.
func NewServer(store storage.Store, registry *ocr.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store:        store,
		orchestrator: ocr.NewOrchestrator(registry),
		engine:       gin.New(),
	}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api")
	{
		api.GET("/wallets", s.listWallets)
		api.POST("/wallets", s.createWallet)
		api.GET("/categories", s.listCategories)
		api.POST("/categories", s.createCategory)
		api.GET("/transactions", s.listTransactions)
		api.POST("/transactions", s.createTransaction)
		api.GET("/budgets", s.listBudgets)
		api.PUT("/budgets", s.setBudget)
		api.GET("/prices/:name", s.priceHistory)
		api.POST("/receipts", s.parseReceipt)
	}
	return s
}

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	log.Info().Str("addr", addr).Msg("web api listening")
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

type userQuery struct {
	UserID int64 `form:"user_id" binding:"required"`
}

func (s *Server) listWallets(c *gin.Context) {
	var q userQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	wallets, err := s.store.GetWallets(q.UserID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]gin.H, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, gin.H{
			"id":       w.ID,
			"name":     w.Name,
			"currency": w.Currency,
			"balance":  w.Balance.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createWallet(c *gin.Context) {
	var req struct {
		UserID   int64  `json:"user_id" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Currency string `json:"currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	w, err := s.store.CreateWallet(req.UserID, req.Name, req.Currency)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": w.ID, "name": w.Name, "currency": w.Currency})
}

func (s *Server) listCategories(c *gin.Context) {
	var q userQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	cats, err := s.store.GetCategories(q.UserID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]gin.H, 0, len(cats))
	for _, cat := range cats {
		out = append(out, gin.H{"id": cat.ID, "name": cat.Name})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createCategory(c *gin.Context) {
	var req struct {
		UserID int64  `json:"user_id" binding:"required"`
		Name   string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	cat, err := s.store.CreateCategory(req.UserID, req.Name)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": cat.ID, "name": cat.Name})
}

func (s *Server) listTransactions(c *gin.Context) {
	var q struct {
		UserID int64 `form:"user_id" binding:"required"`
		Limit  int   `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	txs, err := s.store.GetTransactions(q.UserID, q.Limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, gin.H{
			"id":           tx.ID,
			"wallet_id":    tx.WalletID,
			"category_id":  tx.CategoryID,
			"amount":       tx.Amount.String(),
			"currency":     tx.Currency,
			"merchant":     tx.Merchant,
			"date":         tx.Date,
			"source":       tx.Source,
			"ocr_provider": tx.OcrProvider,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createTransaction(c *gin.Context) {
	var req struct {
		UserID     int64                   `json:"user_id" binding:"required"`
		WalletID   int64                   `json:"wallet_id" binding:"required"`
		CategoryID int64                   `json:"category_id"`
		Amount     string                  `json:"amount" binding:"required"`
		Currency   string                  `json:"currency" binding:"required"`
		Merchant   string                  `json:"merchant"`
		Date       string                  `json:"date" binding:"required"`
		Items      []ocr.ParsedReceiptItem `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	for i := range req.Items {
		req.Items[i].NormalizedName = ocr.NormalizeItemName(req.Items[i].Name)
	}

	tx := &storage.Transaction{
		UserID:     req.UserID,
		WalletID:   req.WalletID,
		CategoryID: req.CategoryID,
		Amount:     amount,
		Currency:   req.Currency,
		Merchant:   req.Merchant,
		Date:       req.Date,
		Source:     "api",
	}
	if err := s.store.CreateTransaction(tx, req.Items); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.AdjustWalletBalance(req.WalletID, amount.Neg()); err != nil {
		log.Error().Err(err).Int64("walletID", req.WalletID).Msg("failed to adjust wallet balance")
	}
	c.JSON(http.StatusCreated, gin.H{"id": tx.ID})
}

func (s *Server) listBudgets(c *gin.Context) {
	var q struct {
		UserID int64  `form:"user_id" binding:"required"`
		Month  string `form:"month"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	month := q.Month
	if month == "" {
		month = budget.CurrentMonth()
	}
	statuses, err := budget.ForMonth(s.store, q.UserID, month)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]gin.H, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, gin.H{
			"category_id": st.CategoryID,
			"month":       st.Month,
			"limit":       st.Limit.String(),
			"spent":       st.Spent.String(),
			"remaining":   st.Remaining().String(),
			"progress":    st.Progress(),
			"overspent":   st.Overspent(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) setBudget(c *gin.Context) {
	var req struct {
		UserID     int64  `json:"user_id" binding:"required"`
		CategoryID int64  `json:"category_id" binding:"required"`
		Month      string `json:"month" binding:"required"`
		Limit      string `json:"limit" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	limit, err := decimal.NewFromString(req.Limit)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	b := storage.MonthBudget{UserID: req.UserID, CategoryID: req.CategoryID, Month: req.Month, Limit: limit}
	if err := s.store.SetBudget(b); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) priceHistory(c *gin.Context) {
	var q userQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	normalized := ocr.NormalizeItemName(c.Param("name"))
	points, err := s.store.PriceHistory(q.UserID, normalized)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		out = append(out, gin.H{"merchant": p.Merchant, "date": p.Date, "price_per_unit": p.PricePerUnit})
	}
	c.JSON(http.StatusOK, gin.H{"name": normalized, "prices": out})
}

// parseReceipt runs base64 images through the OCR orchestrator without
// persisting anything; the dashboard confirms via POST /api/transactions.
func (s *Server) parseReceipt(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
		Images []struct {
			Data   string `json:"data" binding:"required"`
			Format string `json:"format"`
		} `json:"images" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	images := make([]ocr.ImageInput, 0, len(req.Images))
	format := ocr.FormatJPEG
	for _, img := range req.Images {
		f := ocr.ImageFormat(img.Format)
		if f == "" {
			f = ocr.FormatJPEG
		}
		format = f
		images = append(images, ocr.ImageInput{Data: img.Data, Format: f})
	}

	resolveKey := func(provider string) string {
		key, err := s.store.GetProviderKey(req.UserID, provider)
		if err != nil {
			log.Error().Err(err).Str("provider", provider).Msg("provider key lookup failed")
			return ""
		}
		return key
	}

	result, err := s.orchestrator.Run(c.Request.Context(), images, format.MIMEType(), resolveKey)
	if err != nil {
		status, kind := ocrErrorStatus(err)
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"receipt":         result.Receipt,
		"provider":        result.Provider,
		"providers_tried": result.ProvidersTried,
		"fallback_reason": result.FallbackReason,
		"elapsed_ms":      result.ElapsedMS,
	})
}

// ocrErrorStatus maps orchestrator failures onto HTTP statuses the dashboard
// can branch on: 409 means "add a key / check setup", 422 means "retake the
// photo", 503 means "try again later".
func ocrErrorStatus(err error) (int, string) {
	if errors.Is(err, ocr.ErrNoProviders) {
		return http.StatusConflict, "NO_PROVIDERS"
	}
	ocrErr := ocr.Classify(err)
	if !ocrErr.Retryable {
		return http.StatusUnprocessableEntity, string(ocrErr.Kind)
	}
	return http.StatusServiceUnavailable, string(ocrErr.Kind)
}
