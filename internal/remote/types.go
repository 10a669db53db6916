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

package remote

import "time"

// MediaRegistration 登记已上传媒体
type MediaRegistration struct {
	VisitID    string
	Kind       string // photo | audio
	Path       string
	SizeBytes  int64
	DurationMs int64
	Sequence   int
	Hash       string
}

// TriggerResult 触发估算的返回
type TriggerResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	EstimateID string `json:"-"`
}

// JobStatus 远端 ai_jobs 最新一条记录
type JobStatus struct {
	ID        string    `json:"id"`
	VisitID   string    `json:"visit_id"`
	Status    string    `json:"status"` // queued | processing | completed | failed
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BBox 照片证据框
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Evidence 估算行的证据（照片框或转写时间段）
type Evidence struct {
	Type       string  `json:"type"` // photo | transcript
	MediaID    string  `json:"media_id,omitempty"`
	BBox       *BBox   `json:"bbox,omitempty"`
	StartMs    *int64  `json:"start_ms,omitempty"`
	EndMs      *int64  `json:"end_ms,omitempty"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// EstimateLine 估算行
type EstimateLine struct {
	LineNumber  int        `json:"line_number"`
	Description string     `json:"description"`
	Quantity    float64    `json:"quantity"`
	Unit        string     `json:"unit"`
	UnitPrice   float64    `json:"unit_price"`
	TotalPrice  float64    `json:"total_price"`
	Category    string     `json:"category,omitempty"`
	Evidence    []Evidence `json:"evidence,omitempty"`
}

// Estimate 远端生成的估算结果
type Estimate struct {
	ID          string                 `json:"id"`
	VisitID     string                 `json:"visit_id"`
	TotalAmount float64                `json:"total_amount"`
	Lines       []EstimateLine         `json:"estimate_lines"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewVisit 创建现场勘查
type NewVisit struct {
	TenantID      string
	EvidencePack  string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Address       string
}

// VisitStatus get_visit_status 的返回
type VisitStatus struct {
	VisitStatus      string  `json:"visit_status"`
	AIStatus         *string `json:"ai_status"`
	EstimateID       *string `json:"estimate_id"`
	ProcessingTimeMs *int64  `json:"processing_time_ms"`
	MediaCount       int     `json:"media_count"`
	ConsentStatus    bool    `json:"consent_status"`
}
