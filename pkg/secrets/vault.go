// Copyright 2026 fanjia1024
// HashiCorp Vault based secret store

package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string // Vault server address (e.g., http://vault:8200)
	Token      string
	PathPrefix string // Secret path prefix (e.g., "secret")
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = config.PathPrefix
	}
	return &vaultStore{client: client, pathPrefix: prefix}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.buildPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret not found: %s", key)
	}

	data := secret.Data
	// KV v2 把实际数据放在 data 子键下
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.buildPath(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) buildPath(key string) string {
	return fmt.Sprintf("%s/%s", v.pathPrefix, key)
}
