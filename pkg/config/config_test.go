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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncd.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
  host: "127.0.0.1"
sync:
  max_attempts: 7
  backoff_jitter: 0.3
storage:
  queue:
    type: memory
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.Sync.MaxAttempts != 7 {
		t.Errorf("Sync.MaxAttempts: got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.BackoffJitter != 0.3 {
		t.Errorf("Sync.BackoffJitter: got %v", cfg.Sync.BackoffJitter)
	}
	if cfg.Storage.Queue.Type != "memory" {
		t.Errorf("Storage.Queue.Type: got %q", cfg.Storage.Queue.Type)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	// 未配置项取默认
	if cfg.Estimation.PollAttempts != 60 || cfg.Estimation.MaxAttempts != 3 {
		t.Errorf("estimation defaults: %+v", cfg.Estimation)
	}
	if cfg.Sync.BackoffMax != "16s" {
		t.Errorf("Sync.BackoffMax: got %q", cfg.Sync.BackoffMax)
	}
}

func TestLoadConfig_EnvReplacement(t *testing.T) {
	t.Setenv("SCOPEKIT_TEST_KEY", "anon-key")
	path := writeConfig(t, `
remote:
  base_url: "http://localhost:54321"
  api_key: "${SCOPEKIT_TEST_KEY}"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Remote.APIKey != "anon-key" {
		t.Errorf("Remote.APIKey: got %q", cfg.Remote.APIKey)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"postgres without dsn": "storage:\n  queue:\n    type: postgres\n",
		"jitter out of range":  "sync:\n  backoff_jitter: 1.5\n",
		"bad duration":         "sync:\n  auto_drain: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("MaxAttempts: got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Storage.Blob.Path != cfg.Storage.Queue.Path {
		t.Errorf("blob path should default to queue path")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("empty: got %v", got)
	}
	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("250ms: got %v", got)
	}
	if got := Duration("garbage", 2*time.Second); got != 2*time.Second {
		t.Errorf("garbage: got %v", got)
	}
}
