package imports

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/api/handlers"
	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/validation"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

// Starter 抓取並啟動一批匯入
type Starter interface {
	Start(ctx context.Context, req importer.Request) (*importer.Batch, error)
}

// HostLister 支援登入的網站
type HostLister interface {
	SupportedHosts() []string
}

// CredentialInput 只用於本次匯入的帳密
type CredentialInput struct {
	Host     string `json:"host" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateImportRequest 建立匯入
type CreateImportRequest struct {
	Provider        string            `json:"provider"`
	URLs            []string          `json:"urls" binding:"required,min=1,dive,required"`
	DefaultPersons  int               `json:"default_persons,omitempty" binding:"omitempty,min=1"`
	IgnoredPatterns []string          `json:"ignored_patterns,omitempty"`
	SkipImported    bool              `json:"skip_imported,omitempty"`
	Credentials     []CredentialInput `json:"credentials,omitempty" binding:"omitempty,dive"`
}

// TagDecision 標籤確認或略過
type TagDecision struct {
	Original common.TagReference  `json:"original"`
	Resolved *common.TagReference `json:"resolved,omitempty"`
}

// IngredientDecision 食材確認或略過
type IngredientDecision struct {
	Original common.IngredientReference  `json:"original"`
	Resolved *common.IngredientReference `json:"resolved,omitempty"`
}

// SessionResponse 匯入工作階段快照
type SessionResponse struct {
	ID                 string                      `json:"id"`
	Provider           string                      `json:"provider"`
	Phase              workflow.Phase              `json:"phase"`
	Error              string                      `json:"error,omitempty"`
	Progress           validation.Progress         `json:"progress"`
	ImportedCount      int                         `json:"imported_count"`
	RecipeCount        int                         `json:"recipe_count"`
	PendingTags        []validation.TagItem        `json:"pending_tags,omitempty"`
	PendingIngredients []validation.IngredientItem `json:"pending_ingredients,omitempty"`
	Skipped            []string                    `json:"skipped,omitempty"`
	Failed             []FailureResponse           `json:"failed,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
}

// FailureResponse 抓取失敗的網址
type FailureResponse struct {
	URL     string `json:"url"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler 匯入 API
type Handler struct {
	starter  Starter
	hosts    HostLister
	sessions *Registry
}

// NewHandler 創建匯入處理器
func NewHandler(starter Starter, hosts HostLister, sessions *Registry) *Handler {
	return &Handler{starter: starter, hosts: hosts, sessions: sessions}
}

// Register 註冊路由
func (h *Handler) Register(group *gin.RouterGroup, createMiddleware ...gin.HandlerFunc) {
	group.GET("/auth/hosts", h.HandleAuthHosts)

	imports := group.Group("/imports")
	imports.POST("", append(createMiddleware, h.HandleCreate)...)
	imports.GET("/:id", h.HandleGet)
	imports.DELETE("/:id", h.HandleDelete)

	imports.POST("/:id/tags/validate", h.HandleTagValidate)
	imports.POST("/:id/tags/dismiss", h.HandleTagDismiss)
	imports.POST("/:id/tags/complete", h.HandleQueueComplete(workflow.QueueTag))

	imports.POST("/:id/ingredients/validate", h.HandleIngredientValidate)
	imports.POST("/:id/ingredients/dismiss", h.HandleIngredientDismiss)
	imports.POST("/:id/ingredients/complete", h.HandleQueueComplete(workflow.QueueIngredient))
}

// HandleAuthHosts 列出支援登入的網站
func (h *Handler) HandleAuthHosts(c *gin.Context) {
	hosts := []string{}
	if h.hosts != nil {
		hosts = append(hosts, h.hosts.SupportedHosts()...)
	}
	c.JSON(http.StatusOK, gin.H{"hosts": hosts})
}

// HandleCreate 抓取網址並建立匯入工作階段
func (h *Handler) HandleCreate(c *gin.Context) {
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	common.LogInfo("收到匯入請求",
		zap.String("provider", req.Provider),
		zap.Int("urls", len(req.URLs)),
		zap.Bool("skip_imported", req.SkipImported),
		zap.Int("credentials", len(req.Credentials)),
	)

	batch, err := h.starter.Start(c.Request.Context(), importer.Request{
		Provider:        req.Provider,
		URLs:            req.URLs,
		DefaultPersons:  req.DefaultPersons,
		IgnoredPatterns: req.IgnoredPatterns,
		SkipImported:    req.SkipImported,
		Credentials:     credentialSource(req.Credentials),
	})
	switch {
	case errors.Is(err, importer.ErrNoURLs):
		handlers.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return
	case errors.Is(err, importer.ErrNoRecipesFetched):
		if batch == nil {
			batch = &importer.Batch{}
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"code":    common.ErrCodeNoRecipeFound,
			"message": common.ErrNoRecipeFound.Message,
			"skipped": batch.Skipped,
			"failed":  failures(batch.Failed),
		})
		return
	case err != nil && (batch == nil || batch.Workflow == nil):
		handlers.RespondError(c, err)
		return
	}

	// 流程在啟動時就可能進入錯誤或完成階段，仍保留工作階段供查詢
	session := h.sessions.Add(batch)
	c.JSON(http.StatusCreated, snapshot(session))
}

// HandleGet 查詢匯入狀態
func (h *Handler) HandleGet(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshot(session))
}

// HandleDelete 放棄匯入
func (h *Handler) HandleDelete(c *gin.Context) {
	if !h.sessions.Remove(c.Param("id")) {
		handlers.RespondError(c, common.ErrSessionNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleTagValidate 確認標籤對應，未提供 resolved 時以原名稱新建
func (h *Handler) HandleTagValidate(c *gin.Context) {
	var req TagDecision
	if !bindDecision(c, &req) {
		return
	}
	resolved := common.TagReference{Name: req.Original.Name}
	if req.Resolved != nil {
		resolved = *req.Resolved
	}
	h.apply(c, func(w *workflow.Workflow) error {
		return w.OnTagValidated(req.Original, resolved)
	})
}

// HandleTagDismiss 略過標籤
func (h *Handler) HandleTagDismiss(c *gin.Context) {
	var req TagDecision
	if !bindDecision(c, &req) {
		return
	}
	h.apply(c, func(w *workflow.Workflow) error {
		return w.OnTagDismissed(req.Original)
	})
}

// HandleIngredientValidate 確認食材對應，未提供 resolved 時以原名稱新建
func (h *Handler) HandleIngredientValidate(c *gin.Context) {
	var req IngredientDecision
	if !bindDecision(c, &req) {
		return
	}
	resolved := common.IngredientReference{
		Name:     req.Original.Name,
		Type:     req.Original.Type,
		Quantity: req.Original.Quantity,
		Unit:     req.Original.Unit,
	}
	if req.Resolved != nil {
		resolved = *req.Resolved
	}
	h.apply(c, func(w *workflow.Workflow) error {
		return w.OnIngredientValidated(req.Original, resolved)
	})
}

// HandleIngredientDismiss 略過食材
func (h *Handler) HandleIngredientDismiss(c *gin.Context) {
	var req IngredientDecision
	if !bindDecision(c, &req) {
		return
	}
	h.apply(c, func(w *workflow.Workflow) error {
		return w.OnIngredientDismissed(req.Original)
	})
}

// HandleQueueComplete 結束目前佇列
func (h *Handler) HandleQueueComplete(kind workflow.QueueKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.apply(c, func(w *workflow.Workflow) error {
			q := w.CurrentQueue()
			if q == nil || q.Kind() != kind {
				return common.ErrInvalidPhase.Wrap(workflow.ErrInvalidPhase)
			}
			return q.OnComplete(c.Request.Context())
		})
	}
}

// apply 在工作階段鎖內執行流程操作並回傳最新快照
// 流程本身進入錯誤階段時仍回傳 200，錯誤內容放在快照中
func (h *Handler) apply(c *gin.Context, op func(w *workflow.Workflow) error) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var resp SessionResponse
	err := session.Do(func(batch *importer.Batch) error {
		if batch.Workflow == nil {
			return common.ErrInvalidPhase.Wrap(workflow.ErrInvalidPhase)
		}
		opErr := op(batch.Workflow)
		resp = snapshotLocked(session, batch)
		if opErr != nil && batch.Workflow.Phase() == workflow.PhaseError {
			return nil
		}
		return opErr
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	session, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		handlers.RespondError(c, common.ErrSessionNotFound)
		return nil, false
	}
	return session, true
}

// bindDecision 解析請求，名稱不可為空白
func bindDecision(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		handlers.RespondError(c, common.ErrInvalidRequest.Wrap(err))
		return false
	}
	var name string
	switch r := req.(type) {
	case *TagDecision:
		name = r.Original.Name
	case *IngredientDecision:
		name = r.Original.Name
	}
	if strings.TrimSpace(name) == "" {
		handlers.RespondError(c, common.NewValidationError("original name is required"))
		return false
	}
	return true
}

func snapshot(session *Session) SessionResponse {
	var resp SessionResponse
	_ = session.Do(func(batch *importer.Batch) error {
		resp = snapshotLocked(session, batch)
		return nil
	})
	return resp
}

func snapshotLocked(session *Session, batch *importer.Batch) SessionResponse {
	resp := SessionResponse{
		ID:          session.ID,
		Provider:    batch.Provider,
		RecipeCount: len(batch.Recipes),
		Skipped:     batch.Skipped,
		Failed:      failures(batch.Failed),
		CreatedAt:   session.CreatedAt,
	}
	w := batch.Workflow
	if w == nil {
		return resp
	}
	resp.Phase = w.Phase()
	resp.Progress = w.Progress()
	resp.ImportedCount = w.ImportedCount()
	if err := w.Err(); err != nil {
		resp.Error = err.Error()
	}
	switch q := w.CurrentQueue().(type) {
	case *workflow.TagQueue:
		resp.PendingTags = q.Pending()
	case *workflow.IngredientQueue:
		resp.PendingIngredients = q.Pending()
	}
	return resp
}

func failures(failed []importer.FailedURL) []FailureResponse {
	out := make([]FailureResponse, 0, len(failed))
	for _, f := range failed {
		custom := handlers.Classify(f.Err)
		out = append(out, FailureResponse{URL: f.URL, Code: custom.Code, Message: f.Error})
	}
	return out
}

// credentialSource 以請求中的帳密建立查詢函式
func credentialSource(inputs []CredentialInput) func(host string) (string, string, bool) {
	if len(inputs) == 0 {
		return nil
	}
	return func(host string) (string, string, bool) {
		host = strings.TrimPrefix(strings.ToLower(host), "www.")
		for _, in := range inputs {
			if strings.TrimPrefix(strings.ToLower(in.Host), "www.") == host {
				return in.Username, in.Password, true
			}
		}
		return "", "", false
	}
}
