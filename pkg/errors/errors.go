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

// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrOffline 设备报告离线，属门控条件而非失败
	ErrOffline = errors.New("device offline")
	// ErrUnreachable 设备在线但远端服务探测失败
	ErrUnreachable = errors.New("remote service unreachable")
	// ErrBlobMissing 队列项对应的二进制载荷不存在（本地永久错误）
	ErrBlobMissing = errors.New("blob missing for queued item")
	// ErrRetryCeiling 已达重试上限，需人工介入
	ErrRetryCeiling = errors.New("retry ceiling reached")
	// ErrAlreadyRunning 单飞：已有 drain 在执行
	ErrAlreadyRunning = errors.New("drain already in flight")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsGating 连通性门控，不计为失败
func IsGating(err error) bool {
	return errors.Is(err, ErrOffline)
}
