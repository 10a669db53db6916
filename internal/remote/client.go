// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote 远端服务（对象存储、RPC、边缘函数）的 HTTP 客户端
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// Config 远端客户端配置
type Config struct {
	BaseURL   string
	APIKey    string
	Bucket    string
	Timeout   time.Duration
	RateLimit float64 // 每秒请求数，<=0 不限流
	Burst     int
}

// StatusError 远端返回的非 2xx 响应
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Transient 5xx、408、429 视为可重试
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// Unwrap 非可重试的 4xx 归为 ErrInvalidArg
func (e *StatusError) Unwrap() error {
	if e.Transient() {
		return nil
	}
	return pkgerrors.ErrInvalidArg
}

// Client 远端服务客户端；所有请求经过令牌桶限流
type Client struct {
	http    *resty.Client
	bucket  string
	limiter *rate.Limiter
}

// New 创建客户端
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		hc.SetHeader("apikey", cfg.APIKey).SetAuthToken(cfg.APIKey)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "site-visits"
	}
	return &Client{http: hc, bucket: bucket, limiter: limiter}
}

func (c *Client) do(ctx context.Context, method, path string, prepare func(r *resty.Request)) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r := c.http.R().SetContext(ctx)
	if prepare != nil {
		prepare(r)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode(), Body: resp.String()}
	}
	return resp.Body(), nil
}

func decode(body []byte, out interface{}) error {
	if len(body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析远端响应失败: %w", err)
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, fn string, args map[string]interface{}, out interface{}) error {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, func(r *resty.Request) {
		r.SetBody(args)
	})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// Upload 上传对象到 bucket/path；覆盖已有对象，崩溃后重传安全。
// 返回服务端给出的对象 key，响应未带 key 时返回 path
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body, err := c.do(ctx, http.MethodPost, "/storage/v1/object/"+c.bucket+"/"+path, func(r *resty.Request) {
		r.SetHeader("Content-Type", contentType).
			SetHeader("x-upsert", "true").
			SetHeader("cache-control", "3600").
			SetBody(data)
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Key string `json:"Key"`
	}
	if err := decode(body, &out); err != nil {
		return "", err
	}
	if out.Key != "" {
		return out.Key, nil
	}
	return path, nil
}

// RegisterMedia 调用 register_media，返回 media id
func (c *Client) RegisterMedia(ctx context.Context, m MediaRegistration) (string, error) {
	args := map[string]interface{}{
		"p_visit_id":     m.VisitID,
		"p_media_type":   m.Kind,
		"p_storage_path": m.Path,
		"p_file_size":    nullInt(m.SizeBytes),
		"p_duration_ms":  nullInt(m.DurationMs),
		"p_sequence":     m.Sequence,
		"p_hash":         nullStr(m.Hash),
	}
	var mediaID string
	if err := c.rpc(ctx, "register_media", args, &mediaID); err != nil {
		return "", err
	}
	return mediaID, nil
}

// TriggerEstimation 调用 trigger-ai-estimation 边缘函数；success=false 视为失败
func (c *Client) TriggerEstimation(ctx context.Context, visitID string) (TriggerResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/functions/v1/trigger-ai-estimation", func(r *resty.Request) {
		r.SetBody(map[string]string{"visit_id": visitID})
	})
	if err != nil {
		return TriggerResult{}, err
	}
	var out struct {
		TriggerResult
		Result struct {
			EstimateID string `json:"estimate_id"`
		} `json:"result"`
	}
	if err := decode(body, &out); err != nil {
		return TriggerResult{}, err
	}
	res := out.TriggerResult
	res.EstimateID = out.Result.EstimateID
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "failed to trigger estimation"
		}
		return res, errors.New(msg)
	}
	return res, nil
}

// GetJobStatus 查询该 visit 最新的 ai_jobs 记录；无记录时 ok=false
func (c *Client) GetJobStatus(ctx context.Context, visitID string) (JobStatus, bool, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("visit_id", "eq."+visitID)
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")
	body, err := c.do(ctx, http.MethodGet, "/rest/v1/ai_jobs", func(r *resty.Request) {
		r.SetQueryParamsFromValues(q)
	})
	if err != nil {
		return JobStatus{}, false, err
	}
	var rows []JobStatus
	if err := decode(body, &rows); err != nil {
		return JobStatus{}, false, err
	}
	if len(rows) == 0 {
		return JobStatus{}, false, nil
	}
	return rows[0], true, nil
}

// GetEstimate 获取该 visit 最新估算及明细；无记录时返回 nil
func (c *Client) GetEstimate(ctx context.Context, visitID string) (*Estimate, error) {
	q := url.Values{}
	q.Set("select", "*,estimate_lines(*)")
	q.Set("visit_id", "eq."+visitID)
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")
	body, err := c.do(ctx, http.MethodGet, "/rest/v1/estimates", func(r *resty.Request) {
		r.SetQueryParamsFromValues(q)
	})
	if err != nil {
		return nil, err
	}
	var rows []Estimate
	if err := decode(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Ping 轻量可达性探测：读取一行 ai_jobs 元数据
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/rest/v1/ai_jobs", func(r *resty.Request) {
		r.SetQueryParam("select", "id").SetQueryParam("limit", "1")
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrUnreachable, err.Error())
	}
	return nil
}

// CreateVisit 创建现场勘查；create_site_visit_v2 不存在时回落到 create_site_visit
func (c *Client) CreateVisit(ctx context.Context, v NewVisit) (string, error) {
	pack := v.EvidencePack
	if pack == "" {
		pack = "general_v1"
	}
	args := map[string]interface{}{
		"p_tenant_id":      v.TenantID,
		"p_evidence_pack":  pack,
		"p_customer_id":    nullStr(v.CustomerID),
		"p_customer_name":  nullStr(v.CustomerName),
		"p_customer_email": nullStr(v.CustomerEmail),
		"p_customer_phone": nullStr(v.CustomerPhone),
		"p_address":        nullStr(v.Address),
	}
	var visitID string
	err := c.rpc(ctx, "create_site_visit_v2", args, &visitID)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound && strings.Contains(se.Body, "PGRST202") {
		err = c.rpc(ctx, "create_site_visit", args, &visitID)
	}
	if err != nil {
		return "", err
	}
	return visitID, nil
}

// FinalizeVisit 结束勘查；幂等键 {visit}_finalize_{unixms}
func (c *Client) FinalizeVisit(ctx context.Context, visitID string, at time.Time) error {
	return c.rpc(ctx, "finalize_site_visit", map[string]interface{}{
		"p_visit_id":        visitID,
		"p_idempotency_key": fmt.Sprintf("%s_finalize_%d", visitID, at.UnixMilli()),
	}, nil)
}

// GetVisitStatus 查询勘查整体状态
func (c *Client) GetVisitStatus(ctx context.Context, visitID string) (*VisitStatus, error) {
	var out VisitStatus
	if err := c.rpc(ctx, "get_visit_status", map[string]interface{}{"p_visit_id": visitID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
