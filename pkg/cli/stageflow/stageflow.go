// Package stageflow 是 stageflow HTTP API 的客户端，供命令行使用
package stageflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
)

// Stageflow HTTP API客户端
type Stageflow struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Stageflow {
	return &Stageflow{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError 服务端返回的错误
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return e.Message
}

// ========== Task API ==========

// ListTasks 按条件列出Task
func (s *Stageflow) ListTasks(query dto.TaskListQuery) (*dto.ListResponse[*task.Task], error) {
	params := url.Values{}
	setParam(params, "status", query.Status)
	setParam(params, "assignedTo", query.AssignedTo)
	setParam(params, "checkerId", query.CheckerID)
	setParam(params, "workflowId", query.WorkflowID)
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		params.Set("offset", strconv.Itoa(query.Offset))
	}
	return call[dto.ListResponse[*task.Task]](s, http.MethodGet, withQuery("/api/v1/tasks", params), nil)
}

// GetTask 获取Task详情
func (s *Stageflow) GetTask(id string) (*task.Task, error) {
	return call[task.Task](s, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil)
}

// CreateTask 创建Task
func (s *Stageflow) CreateTask(req dto.CreateTaskRequest) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, "/api/v1/tasks", req)
}

// DeleteTask 删除Task
func (s *Stageflow) DeleteTask(id, actor string) error {
	params := url.Values{}
	setParam(params, "actor", actor)
	_, err := call[any](s, http.MethodDelete, withQuery("/api/v1/tasks/"+url.PathEscape(id), params), nil)
	return err
}

// UpdateTaskStatus 直接设置状态
func (s *Stageflow) UpdateTaskStatus(id, status, actor string) (*task.Task, error) {
	return call[task.Task](s, http.MethodPut, taskPath(id, "status"), dto.UpdateStatusRequest{Status: status, Actor: actor})
}

// StartTask 开始处理
func (s *Stageflow) StartTask(id, userID string) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, taskPath(id, "start"), dto.ActorRequest{UserID: userID})
}

// SubmitTask 提交审核
func (s *Stageflow) SubmitTask(id, userID string, data map[string]interface{}) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, taskPath(id, "submit"), dto.SubmitRequest{UserID: userID, SubmissionData: data})
}

// StartReview 开始审核
func (s *Stageflow) StartReview(id, checkerID string) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, taskPath(id, "review/start"), dto.ActorRequest{UserID: checkerID})
}

// ApproveTask 审批通过
func (s *Stageflow) ApproveTask(id string, req dto.ApproveRequest) (*engine.ApprovalOutcome, error) {
	return call[engine.ApprovalOutcome](s, http.MethodPost, taskPath(id, "approve"), req)
}

// RequireRevision 要求返工
func (s *Stageflow) RequireRevision(id string, req dto.RevisionRequest) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, taskPath(id, "revision"), req)
}

// CancelTask 取消Task
func (s *Stageflow) CancelTask(id, actor, reason string) (*task.Task, error) {
	return call[task.Task](s, http.MethodPost, taskPath(id, "cancel"), dto.CancelRequest{Actor: actor, Reason: reason})
}

// GetPrefill 当前阶段的预填数据
func (s *Stageflow) GetPrefill(id string) (*dto.PrefillResponse, error) {
	return call[dto.PrefillResponse](s, http.MethodGet, taskPath(id, "prefill"), nil)
}

// ========== Linking API ==========

// ListLinkings 列出联动配置
func (s *Stageflow) ListLinkings(workflowID string) ([]*linking.Config, error) {
	params := url.Values{}
	setParam(params, "workflowId", workflowID)
	list, err := call[[]*linking.Config](s, http.MethodGet, withQuery("/api/v1/linkings", params), nil)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// GetLinking 获取联动配置
func (s *Stageflow) GetLinking(id string) (*linking.Config, error) {
	return call[linking.Config](s, http.MethodGet, "/api/v1/linkings/"+url.PathEscape(id), nil)
}

// CreateLinking 创建联动配置
func (s *Stageflow) CreateLinking(spec linking.CreateSpec) (*linking.Config, error) {
	return call[linking.Config](s, http.MethodPost, "/api/v1/linkings", spec)
}

// UpdateLinking 更新联动配置
func (s *Stageflow) UpdateLinking(id string, patch linking.Patch) (*linking.Config, error) {
	return call[linking.Config](s, http.MethodPut, "/api/v1/linkings/"+url.PathEscape(id), patch)
}

// DeleteLinking 删除联动配置
func (s *Stageflow) DeleteLinking(id string) error {
	_, err := call[any](s, http.MethodDelete, "/api/v1/linkings/"+url.PathEscape(id), nil)
	return err
}

// FieldMappings 查询阶段之间的字段映射
func (s *Stageflow) FieldMappings(workflowID string, from, to int) ([]linking.FieldMapping, error) {
	params := url.Values{}
	params.Set("workflowId", workflowID)
	params.Set("from", strconv.Itoa(from))
	params.Set("to", strconv.Itoa(to))
	list, err := call[[]linking.FieldMapping](s, http.MethodGet, withQuery("/api/v1/field-mappings", params), nil)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// ========== Directory API ==========

// ListWorkflows 列出工作流定义
func (s *Stageflow) ListWorkflows() ([]*directory.WorkflowDefinition, error) {
	list, err := call[[]*directory.WorkflowDefinition](s, http.MethodGet, "/api/v1/workflows", nil)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// RegisterWorkflow 注册工作流定义
func (s *Stageflow) RegisterWorkflow(req dto.RegisterWorkflowRequest) (*directory.WorkflowDefinition, error) {
	return call[directory.WorkflowDefinition](s, http.MethodPost, "/api/v1/workflows", req)
}

// ListDependencies 列出依赖链
func (s *Stageflow) ListDependencies(workflowID string) ([]*directory.UserDependency, error) {
	params := url.Values{}
	setParam(params, "workflowId", workflowID)
	list, err := call[[]*directory.UserDependency](s, http.MethodGet, withQuery("/api/v1/dependencies", params), nil)
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// GetDependency 获取依赖链
func (s *Stageflow) GetDependency(id string) (*directory.UserDependency, error) {
	return call[directory.UserDependency](s, http.MethodGet, "/api/v1/dependencies/"+url.PathEscape(id), nil)
}

// SaveDependency 创建或替换依赖链
func (s *Stageflow) SaveDependency(id string, req dto.DependencyRequest) (*directory.UserDependency, error) {
	return call[directory.UserDependency](s, http.MethodPut, "/api/v1/dependencies/"+url.PathEscape(id), req)
}

// DeleteDependency 删除依赖链
func (s *Stageflow) DeleteDependency(id string) error {
	_, err := call[any](s, http.MethodDelete, "/api/v1/dependencies/"+url.PathEscape(id), nil)
	return err
}

// ========== Health API ==========

// Health 健康检查
func (s *Stageflow) Health() (*dto.HealthResponse, error) {
	return call[dto.HealthResponse](s, http.MethodGet, "/health", nil)
}

// ========== HTTP Methods ==========

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func call[T any](s *Stageflow, method, path string, body interface{}) (*T, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var failed envelope[dto.ErrorBody]
		if err := json.Unmarshal(raw, &failed); err != nil || failed.Message == "" {
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, &APIError{Status: resp.StatusCode, Kind: failed.Data.Kind, Message: failed.Message}
	}

	var ok envelope[T]
	if err := json.Unmarshal(raw, &ok); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w, body: %s", err, string(raw))
	}
	if ok.Code != 0 {
		return nil, errors.New(ok.Message)
	}
	return &ok.Data, nil
}

func taskPath(id, action string) string {
	return "/api/v1/tasks/" + url.PathEscape(id) + "/" + action
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func setParam(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
