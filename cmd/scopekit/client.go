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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultAPIURL = "http://localhost:8787"

func apiBaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if u := os.Getenv("SCOPEKIT_API_URL"); u != "" {
		return u
	}
	return defaultAPIURL
}

type apiClient struct {
	http *resty.Client
}

func newClient(baseURL string) *apiClient {
	return &apiClient{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json")}
}

// call 发送请求并把 JSON 响应解码为通用结构；非 2xx 返回带响应体的错误
func (c *apiClient) call(method, path string, query map[string]string, body interface{}) (interface{}, error) {
	var out interface{}
	req := c.http.R().SetResult(&out)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *apiClient) status() (interface{}, error) {
	return c.call(http.MethodGet, "/api/sync/status", nil, nil)
}

func (c *apiClient) items() (interface{}, error) {
	return c.call(http.MethodGet, "/api/sync/items", nil, nil)
}

func (c *apiClient) orphans() (interface{}, error) {
	return c.call(http.MethodGet, "/api/sync/orphans", nil, nil)
}

func (c *apiClient) drain(wait bool) (interface{}, error) {
	var q map[string]string
	if wait {
		q = map[string]string{"wait": "true"}
	}
	return c.call(http.MethodPost, "/api/sync/drain", q, nil)
}

func (c *apiClient) clear() (interface{}, error) {
	return c.call(http.MethodPost, "/api/sync/clear", nil, nil)
}

func (c *apiClient) discard(id string) (interface{}, error) {
	return c.call(http.MethodDelete, "/api/sync/items/"+id, nil, nil)
}

func (c *apiClient) triggerEstimation(visitID string) (interface{}, error) {
	return c.call(http.MethodPost, "/api/visits/"+visitID+"/estimation", nil, nil)
}

func (c *apiClient) estimate(visitID string) (interface{}, error) {
	return c.call(http.MethodGet, "/api/visits/"+visitID+"/estimate", nil, nil)
}

func (c *apiClient) jobs() (interface{}, error) {
	return c.call(http.MethodGet, "/api/estimation/jobs", nil, nil)
}

func (c *apiClient) processJobs() (interface{}, error) {
	return c.call(http.MethodPost, "/api/estimation/process", nil, nil)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
