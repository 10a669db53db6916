// Copyright 2026 fanjia1024
// Secret resolution for remote credentials

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// Store Secret 存储接口
type Store interface {
	// Get 获取 secret 值，不存在时返回包装 ErrNotFound 的错误
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error
}

// Config Secret Store 配置
type Config struct {
	Provider   string // env | memory | vault
	Address    string
	Token      string
	PathPrefix string
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Address,
			Token:      config.Token,
			PathPrefix: config.PathPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 按 key 读取 secret；key 为空时直接返回 fallback
func Resolve(ctx context.Context, s Store, key, fallback string) (string, error) {
	if key == "" || s == nil {
		return fallback, nil
	}
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("读取 secret %q 失败: %w", key, err)
	}
	return v, nil
}

type envStore struct{}

// NewEnvStore 创建环境变量 secret store
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(key))
	value := os.Getenv(name)
	if value == "" {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "environment variable not set: %s", name)
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(key))
	return os.Setenv(name, value)
}

type memoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存 secret store
func NewMemoryStore() Store {
	return &memoryStore{secrets: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[key]
	if !ok {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret not found: %s", key)
	}
	return value, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}
