package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/types"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/gin-gonic/gin"
)

// statusForError 错误分类到HTTP状态码的映射
func statusForError(err error) int {
	if errors.Is(err, storage.ErrVersionConflict) {
		return http.StatusConflict
	}
	switch types.KindOf(err) {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindAssignmentGap:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 输出错误响应，data中带上错误分类
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, dto.APIResponse[dto.ErrorBody]{
		Code:    status,
		Message: err.Error(),
		Data:    dto.ErrorBody{Kind: string(types.KindOf(err))},
	})
}

// badRequest 参数绑定失败
func badRequest(c *gin.Context, format string, args ...interface{}) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf(format, args...)))
}

// formatDuration 格式化时间间隔
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// paginate 对切片做limit/offset分页
func paginate[T any](items []T, limit, offset int) dto.ListResponse[T] {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := items[offset:end]
	if page == nil {
		page = []T{}
	}
	return dto.ListResponse[T]{
		Total:   total,
		Items:   page,
		HasMore: end < total,
	}
}
