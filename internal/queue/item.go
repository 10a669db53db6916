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

package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind 队列项类型（封闭集合）
type Kind string

const (
	KindPhoto Kind = "photo"
	KindAudio Kind = "audio"
	KindAIJob Kind = "ai_job"
)

// Payload 按 Kind 区分的载荷描述；只有本包内的变体实现该接口
type Payload interface {
	Kind() Kind
	isPayload()
}

// Photo 照片上传：二进制在 Blob Store，以 Item.ID 为键
type Photo struct {
	Path      string `json:"path"`
	Sequence  int    `json:"sequence"`
	SizeBytes int64  `json:"size_bytes"`
}

// Audio 音频分片上传
type Audio struct {
	Path       string `json:"path"`
	Sequence   int    `json:"sequence"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// AIJob 延迟的估算触发
type AIJob struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
}

func (Photo) Kind() Kind { return KindPhoto }
func (Audio) Kind() Kind { return KindAudio }
func (AIJob) Kind() Kind { return KindAIJob }

func (Photo) isPayload() {}
func (Audio) isPayload() {}
func (AIJob) isPayload() {}

// Media 媒体项的公共字段视图
type Media struct {
	Kind       Kind
	Path       string
	Sequence   int
	SizeBytes  int64
	DurationMs int64
}

// Item 一个待同步工作单元
type Item struct {
	ID        string
	VisitID   string
	Attempts  int
	CreatedAt time.Time
	Payload   Payload

	// RegisteredAt 远端已登记、本地清理待完成；非空时不再上传/登记
	RegisteredAt *time.Time
	// OrphanedAt 最近一次发现 blob 缺失的时间；非空即出现在孤儿报告中
	OrphanedAt *time.Time
	LastError  string
}

// Kind 返回载荷类型；无载荷时为空
func (it *Item) Kind() Kind {
	if it.Payload == nil {
		return ""
	}
	return it.Payload.Kind()
}

// Media 返回媒体字段；ai_job 返回 false
func (it *Item) Media() (Media, bool) {
	switch p := it.Payload.(type) {
	case Photo:
		return Media{Kind: KindPhoto, Path: p.Path, Sequence: p.Sequence, SizeBytes: p.SizeBytes}, true
	case Audio:
		return Media{Kind: KindAudio, Path: p.Path, Sequence: p.Sequence, SizeBytes: p.SizeBytes, DurationMs: p.DurationMs}, true
	default:
		return Media{}, false
	}
}

// Clone 深拷贝，存储实现返回副本以免调用方就地修改
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.RegisteredAt != nil {
		t := *it.RegisteredAt
		c.RegisteredAt = &t
	}
	if it.OrphanedAt != nil {
		t := *it.OrphanedAt
		c.OrphanedAt = &t
	}
	return &c
}

// Validate 入队前的结构校验
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("queue item id 不能为空")
	}
	if it.VisitID == "" {
		return fmt.Errorf("queue item %s: visit id 不能为空", it.ID)
	}
	switch p := it.Payload.(type) {
	case Photo:
		if p.Path == "" {
			return fmt.Errorf("queue item %s: photo path 不能为空", it.ID)
		}
	case Audio:
		if p.Path == "" {
			return fmt.Errorf("queue item %s: audio path 不能为空", it.ID)
		}
	case AIJob:
		if p.JobID == "" {
			return fmt.Errorf("queue item %s: job id 不能为空", it.ID)
		}
	default:
		return fmt.Errorf("queue item %s: 未知载荷类型 %T", it.ID, it.Payload)
	}
	return nil
}

type itemJSON struct {
	ID           string          `json:"id"`
	VisitID      string          `json:"visit_id"`
	Kind         Kind            `json:"kind"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	RegisteredAt *time.Time      `json:"registered_at,omitempty"`
	OrphanedAt   *time.Time      `json:"orphaned_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// MarshalJSON 以 kind 作为判别字段编码
func (it Item) MarshalJSON() ([]byte, error) {
	if it.Payload == nil {
		return nil, fmt.Errorf("queue item %s: payload 为空", it.ID)
	}
	raw, err := json.Marshal(it.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itemJSON{
		ID:           it.ID,
		VisitID:      it.VisitID,
		Kind:         it.Payload.Kind(),
		Attempts:     it.Attempts,
		CreatedAt:    it.CreatedAt,
		RegisteredAt: it.RegisteredAt,
		OrphanedAt:   it.OrphanedAt,
		LastError:    it.LastError,
		Payload:      raw,
	})
}

// UnmarshalJSON 按 kind 还原载荷变体
func (it *Item) UnmarshalJSON(data []byte) error {
	var j itemJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var p Payload
	switch j.Kind {
	case KindPhoto:
		var v Photo
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return err
		}
		p = v
	case KindAudio:
		var v Audio
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return err
		}
		p = v
	case KindAIJob:
		var v AIJob
		if err := json.Unmarshal(j.Payload, &v); err != nil {
			return err
		}
		p = v
	default:
		return fmt.Errorf("未知队列项类型: %q", j.Kind)
	}
	*it = Item{
		ID:           j.ID,
		VisitID:      j.VisitID,
		Attempts:     j.Attempts,
		CreatedAt:    j.CreatedAt,
		Payload:      p,
		RegisteredAt: j.RegisteredAt,
		OrphanedAt:   j.OrphanedAt,
		LastError:    j.LastError,
	}
	return nil
}
