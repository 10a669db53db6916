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

package syncd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/syncengine"
	"github.com/bosmith517/scopekit/pkg/config"
)

func memoryConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Queue.Type = "memory"
	cfg.Storage.Blob.Type = "memory"
	cfg.Storage.Jobs.Type = "memory"
	cfg.Storage.Cache.Type = "memory"
	cfg.Remote.BaseURL = baseURL
	cfg.Remote.APIKey = "anon"
	cfg.Sync.AutoDrain = "50ms"
	cfg.Connectivity.ProbeInterval = "50ms"
	cfg.Log.Level = "error"
	cfg.Normalize()
	return cfg
}

func TestProbeAddr(t *testing.T) {
	cases := map[string]string{
		"https://abc.supabase.co":     "abc.supabase.co:443",
		"http://localhost:54321/rest": "localhost:54321",
		"http://10.0.0.2":             "10.0.0.2:80",
		"":                            "",
	}
	for base, want := range cases {
		cfg := &config.Config{}
		cfg.Remote.BaseURL = base
		assert.Equal(t, want, probeAddr(cfg), base)
	}
	cfg := &config.Config{}
	cfg.Connectivity.ProbeAddr = "1.1.1.1:53"
	cfg.Remote.BaseURL = "https://ignored.example"
	assert.Equal(t, "1.1.1.1:53", probeAddr(cfg))
}

func TestResolveAPIKeyFromSecrets(t *testing.T) {
	t.Setenv("SCOPEKIT_REMOTE_KEY", "from-env")
	cfg := &config.Config{}
	cfg.Remote.APIKey = "fallback"
	cfg.Remote.APIKeySecret = "scopekit.remote.key"

	key, err := resolveAPIKey(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	cfg.Remote.APIKeySecret = ""
	key, err = resolveAPIKey(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "fallback", key)
}

func TestApp_DrainsWhenRemoteReachable(t *testing.T) {
	var uploads, registers atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/storage/v1/object/media/"):
			uploads.Add(1)
			_, _ = w.Write([]byte(`{"Key":"media/x"}`))
		case r.URL.Path == "/rest/v1/rpc/register_media":
			registers.Add(1)
			_, _ = w.Write([]byte(`"media-1"`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a, err := NewApp(memoryConfig(srv.URL))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.engine.EnqueueMedia(ctx, syncengine.MediaCapture{
		VisitID: "visit-1", Kind: queue.KindPhoto, Path: "t1/visit-1/photos/photo_0_1.jpg", Data: []byte("jpeg"),
	})
	require.NoError(t, err)
	assert.False(t, a.monitor.Online())

	a.startBackground()
	require.Eventually(t, func() bool {
		n, err := a.queue.Len(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, a.monitor.Online())
	assert.Equal(t, int32(1), uploads.Load())
	assert.Equal(t, int32(1), registers.Load())

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(sctx))
}

func TestApp_OfflineWithoutRemote(t *testing.T) {
	a, err := NewApp(memoryConfig(""))
	require.NoError(t, err)
	assert.Nil(t, a.detector)

	ctx := context.Background()
	job, err := a.est.Trigger(ctx, "visit-1")
	require.NoError(t, err)
	assert.Equal(t, "queued", string(job.Status))
	n, err := a.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, a.Shutdown(ctx))
}

func TestApp_ServerTracingFollowsTracer(t *testing.T) {
	a, err := NewApp(memoryConfig(""))
	require.NoError(t, err)
	defer func() { _ = a.Shutdown(context.Background()) }()

	assert.Empty(t, a.serverTracing())

	// Shutdown 负责关闭 tracer provider
	a.tracer = sdktrace.NewTracerProvider()
	assert.Len(t, a.serverTracing(), 1)
}
