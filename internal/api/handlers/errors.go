package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-importer/internal/core/auth"
	"recipe-importer/internal/core/bridge"
	"recipe-importer/internal/core/parser"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

// Classify 將領域錯誤對應到預定義的 API 錯誤
func Classify(err error) *common.CustomError {
	var custom *common.CustomError
	if errors.As(err, &custom) {
		return custom
	}

	var (
		noRecipe    *parser.NoRecipeFoundError
		authNeeded  *parser.AuthenticationRequiredError
		unsupported *auth.UnsupportedHostError
		authFailed  *auth.AuthError
		authTimeout *auth.TimeoutError
		runtimeErr  *bridge.RuntimeError
		callTimeout *bridge.TimeoutError
	)
	switch {
	case common.IsValidationError(err):
		return common.ErrInvalidRequest.Wrap(err)
	case errors.As(err, &noRecipe):
		return common.ErrNoRecipeFound.Wrap(err)
	case errors.As(err, &authNeeded):
		return common.ErrAuthRequired.Wrap(err)
	case errors.As(err, &unsupported):
		return common.ErrUnsupportedHost.Wrap(err)
	case errors.As(err, &authFailed):
		return common.ErrAuthFailed.Wrap(err)
	case errors.As(err, &authTimeout), errors.As(err, &callTimeout):
		return common.ErrGatewayTimeout.Wrap(err)
	case errors.As(err, &runtimeErr):
		return common.ErrRuntimeError.Wrap(err)
	case errors.Is(err, bridge.ErrBridgeNotReady), errors.Is(err, bridge.ErrBridgeNotInitialized), errors.Is(err, bridge.ErrBridgeDestroyed):
		return common.ErrServiceUnavailable.Wrap(err)
	case errors.Is(err, workflow.ErrInvalidPhase):
		return common.ErrInvalidPhase.Wrap(err)
	case errors.Is(err, workflow.ErrCommitFailure):
		return common.ErrCommitFailure.Wrap(err)
	case errors.Is(err, workflow.ErrEmptyBatch), errors.Is(err, workflow.ErrNoValidIngredients):
		return common.ErrInvalidRequest.Wrap(err)
	}
	return common.ErrInternalError.Wrap(err)
}

// RespondError 以統一格式回傳錯誤，除錯模式附帶原始錯誤
func RespondError(c *gin.Context, err error) {
	custom := Classify(err)
	resp := common.ErrorResponse{Code: custom.Code, Message: custom.Message}
	if gin.Mode() == gin.DebugMode && custom.Err != nil {
		resp.Details = custom.Err.Error()
	}

	if custom.Status >= 500 {
		common.LogError("請求處理失敗",
			zap.String("path", c.Request.URL.Path),
			zap.String("code", custom.Code),
			zap.Error(err),
		)
	}
	c.Error(err)
	c.AbortWithStatusJSON(custom.Status, resp)
}
