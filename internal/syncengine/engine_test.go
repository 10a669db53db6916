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

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosmith517/scopekit/internal/connectivity"
	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/remote"
	"github.com/bosmith517/scopekit/internal/storage/blob"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

type fakeRemote struct {
	mu         sync.Mutex
	uploads    []string
	registers  []remote.MediaRegistration
	uploadErrs []error // 按调用顺序消费
	onUpload   func(ctx context.Context, path string) error
}

func (f *fakeRemote) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, path)
	var err error
	if len(f.uploadErrs) > 0 {
		err, f.uploadErrs = f.uploadErrs[0], f.uploadErrs[1:]
	}
	hook := f.onUpload
	f.mu.Unlock()
	if hook != nil {
		if herr := hook(ctx, path); herr != nil {
			return "", herr
		}
	}
	if err != nil {
		return "", err
	}
	return "media/" + path, nil
}

func (f *fakeRemote) RegisterMedia(ctx context.Context, m remote.MediaRegistration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers = append(f.registers, m)
	return fmt.Sprintf("m-%d", len(f.registers)), nil
}

func (f *fakeRemote) uploadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

type fakeJobs struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeJobs) ProcessJob(ctx context.Context, visitID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, visitID+"/"+jobID)
	return f.err
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	engine *Engine
	queue  queue.Store
	blobs  blob.Store
	remote *fakeRemote
	mon    *connectivity.Monitor
	sleeps *sleepRecorder
}

func newHarness(t *testing.T, online bool, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		queue:  queue.NewMemoryStore(),
		blobs:  blob.NewMemoryStore(),
		remote: &fakeRemote{},
		mon:    connectivity.NewMonitor(online),
		sleeps: &sleepRecorder{},
	}
	seq := 0
	base := []Option{
		WithSleep(h.sleeps.sleep),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("item-%02d", seq) }),
	}
	h.engine = New(h.queue, h.blobs, h.remote, h.mon, Config{}, append(base, opts...)...)
	return h
}

func (h *harness) enqueuePhoto(t *testing.T, seq int) *queue.Item {
	t.Helper()
	it, err := h.engine.EnqueueMedia(context.Background(), MediaCapture{
		VisitID:  "visit-1",
		Kind:     queue.KindPhoto,
		Path:     fmt.Sprintf("t1/visit-1/photos/photo_%d.jpg", seq),
		Sequence: seq,
		Data:     []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
	return it
}

func TestEngine_UploadAndRegisterRemovesItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	it := h.enqueuePhoto(t, 0)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)

	_, err = h.queue.Get(ctx, it.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	_, ok, err := h.blobs.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, h.remote.registers, 1)
	reg := h.remote.registers[0]
	assert.Equal(t, "visit-1", reg.VisitID)
	assert.Equal(t, "photo", reg.Kind)
	assert.Equal(t, 0, reg.Sequence)
	assert.Equal(t, int64(len("jpeg-bytes")), reg.SizeBytes)
	assert.Empty(t, h.engine.Progress())
}

func TestEngine_RetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.remote.uploadErrs = []error{errors.New("boom"), errors.New("boom")}
	it := h.enqueuePhoto(t, 0)

	_, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	got, err := h.queue.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "boom")

	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	got, err = h.queue.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	_, err = h.queue.Get(ctx, it.ID)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))

	assert.Len(t, h.remote.uploadCalls(), 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.delays)
}

func TestEngine_OfflineThenOnlinePreservesOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	for i := 0; i < 3; i++ {
		h.enqueuePhoto(t, i)
	}

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipOffline, report.Skipped)
	assert.Empty(t, h.remote.uploadCalls())
	assert.False(t, h.engine.TriggerDrain())

	h.mon.Set(true)
	report, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Synced)
	assert.Equal(t, []string{
		"t1/visit-1/photos/photo_0.jpg",
		"t1/visit-1/photos/photo_1.jpg",
		"t1/visit-1/photos/photo_2.jpg",
	}, h.remote.uploadCalls())
	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_AIJobItem(t *testing.T) {
	ctx := context.Background()
	jobs := &fakeJobs{}
	h := newHarness(t, true, WithJobProcessor(jobs))

	id, err := h.engine.EnqueueAIJob(ctx, "visit-1", "job-1", "estimate")
	require.NoError(t, err)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, []string{"visit-1/job-1"}, jobs.calls)
	_, err = h.queue.Get(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	assert.Empty(t, h.remote.uploadCalls())
}

func TestEngine_AIJobFailureCountsAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	jobs := &fakeJobs{err: errors.New("edge function down")}
	h.engine.SetJobProcessor(jobs)

	id, err := h.engine.EnqueueAIJob(ctx, "visit-1", "job-1", "estimate")
	require.NoError(t, err)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got, err := h.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestEngine_MissingBlobIsOrphaned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	it := h.enqueuePhoto(t, 0)
	require.NoError(t, h.blobs.Remove(ctx, it.ID))

	for i := 0; i < 2; i++ {
		report, err := h.engine.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Orphaned)
	}

	got, err := h.queue.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Attempts)
	assert.NotNil(t, got.OrphanedAt)
	assert.Empty(t, h.remote.uploadCalls())
	assert.Empty(t, h.sleeps.delays)

	orphans, err := h.engine.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, it.ID, orphans[0].ID)
	assert.Equal(t, StateOrphaned, orphans[0].State)

	st, err := h.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Orphaned)
	assert.Equal(t, 0, st.Pending)

	require.NoError(t, h.engine.Discard(ctx, it.ID))
	orphans, err = h.engine.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestEngine_CeilingSkipsItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	it := h.enqueuePhoto(t, 0)
	got, err := h.queue.Get(ctx, it.ID)
	require.NoError(t, err)
	got.Attempts = 5
	require.NoError(t, h.queue.Put(ctx, got))

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stalled)
	assert.Empty(t, h.remote.uploadCalls())

	items, err := h.engine.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, StateStalled, items[0].State)
}

func TestEngine_FailuresStopAtCeiling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.remote.uploadErrs = make([]error, 10)
	for i := range h.remote.uploadErrs {
		h.remote.uploadErrs[i] = errors.New("503")
	}
	it := h.enqueuePhoto(t, 0)

	for i := 0; i < 8; i++ {
		_, err := h.engine.Drain(ctx)
		require.NoError(t, err)
	}
	got, err := h.queue.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Attempts)
	assert.Len(t, h.remote.uploadCalls(), 5)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, h.sleeps.delays)
}

func TestEngine_SingleFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.onUpload = func(ctx context.Context, path string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	h.enqueuePhoto(t, 0)

	done := make(chan DrainReport)
	go func() {
		r, _ := h.engine.Drain(ctx)
		done <- r
	}()
	<-entered

	assert.True(t, h.engine.Syncing())
	second, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipInFlight, second.Skipped)
	assert.False(t, h.engine.TriggerDrain())
	_, err = h.engine.ClearQueue(ctx)
	assert.True(t, errors.Is(err, pkgerrors.ErrAlreadyRunning))

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Synced)
	assert.Len(t, h.remote.uploadCalls(), 1)
	assert.False(t, h.engine.Syncing())
}

func TestEngine_OfflineMidCycleStops(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.remote.onUpload = func(ctx context.Context, path string) error {
		h.mon.Set(false)
		return nil
	}
	h.enqueuePhoto(t, 0)
	h.enqueuePhoto(t, 1)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Equal(t, 1, report.Synced)
	assert.Len(t, h.remote.uploadCalls(), 1)

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_CancelDoesNotCountAttempt(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	h.remote.onUpload = func(uctx context.Context, path string) error {
		cancel()
		return uctx.Err()
	}
	it := h.enqueuePhoto(t, 0)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)

	got, err := h.queue.Get(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Attempts)
}

type flakyBlobs struct {
	blob.Store
	failRemove int
}

func (f *flakyBlobs) Remove(ctx context.Context, id string) error {
	if f.failRemove > 0 {
		f.failRemove--
		return errors.New("disk busy")
	}
	return f.Store.Remove(ctx, id)
}

// flakyQueue 让 Remove 与携带 RegisteredAt 的 Put 按次数失败
type flakyQueue struct {
	queue.Store
	failRemove        int
	failRegisteredPut int
}

func (f *flakyQueue) Put(ctx context.Context, it *queue.Item) error {
	if it.RegisteredAt != nil && f.failRegisteredPut > 0 {
		f.failRegisteredPut--
		return errors.New("database is locked")
	}
	return f.Store.Put(ctx, it)
}

func (f *flakyQueue) Remove(ctx context.Context, id string) error {
	if f.failRemove > 0 {
		f.failRemove--
		return errors.New("database is locked")
	}
	return f.Store.Remove(ctx, id)
}

func TestEngine_CleanupRetriedWithoutReupload(t *testing.T) {
	ctx := context.Background()
	q := &flakyQueue{Store: queue.NewMemoryStore(), failRemove: 1}
	blobs := blob.NewMemoryStore()
	r := &fakeRemote{}
	e := New(q, blobs, r, connectivity.NewMonitor(true), Config{},
		WithSleep((&sleepRecorder{}).sleep))

	it, err := e.EnqueueMedia(ctx, MediaCapture{
		VisitID: "visit-1", Kind: queue.KindAudio, Path: "t1/visit-1/audio/chunk_0.webm",
		DurationMs: 3000, Data: []byte("webm"),
	})
	require.NoError(t, err)

	report, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CleanupErr)
	got, err := q.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RegisteredAt)
	assert.Zero(t, got.Attempts)
	_, ok, err := blobs.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, ok, "blob must outlive its queue entry")

	items, err := e.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCleanupPending, items[0].State)

	report, err = e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Len(t, r.uploadCalls(), 1)
	require.Len(t, r.registers, 1)
	assert.Equal(t, int64(3000), r.registers[0].DurationMs)
	ids, err := blobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_LostRegisteredMarkNeverOrphans(t *testing.T) {
	ctx := context.Background()
	q := &flakyQueue{Store: queue.NewMemoryStore(), failRemove: 1, failRegisteredPut: 1}
	blobs := blob.NewMemoryStore()
	r := &fakeRemote{}
	e := New(q, blobs, r, connectivity.NewMonitor(true), Config{},
		WithSleep((&sleepRecorder{}).sleep))

	it, err := e.EnqueueMedia(ctx, MediaCapture{
		VisitID: "visit-1", Kind: queue.KindPhoto, Path: "t1/visit-1/photos/photo_0_1.jpg", Data: []byte("jpeg"),
	})
	require.NoError(t, err)

	report, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CleanupErr)
	got, err := q.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RegisteredAt)

	report, err = e.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Orphaned)
	assert.Equal(t, 1, report.Synced)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	ids, err := blobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_BlobLeftoverRemovedNextDrain(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryStore()
	blobs := &flakyBlobs{Store: blob.NewMemoryStore(), failRemove: 1}
	e := New(q, blobs, &fakeRemote{}, connectivity.NewMonitor(true), Config{},
		WithSleep((&sleepRecorder{}).sleep))

	it, err := e.EnqueueMedia(ctx, MediaCapture{
		VisitID: "visit-1", Kind: queue.KindPhoto, Path: "t1/visit-1/photos/photo_0_1.jpg", Data: []byte("jpeg"),
	})
	require.NoError(t, err)

	report, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.CleanupErr)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := blobs.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.Drain(ctx)
	require.NoError(t, err)
	ids, err := blobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_ClearQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.enqueuePhoto(t, 0)
	h.enqueuePhoto(t, 1)

	n, err := h.engine.ClearQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ids, err := h.blobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	l, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, l)
}

func TestEngine_PruneOrphanBlobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	it := h.enqueuePhoto(t, 0)
	require.NoError(t, h.blobs.Put(ctx, "leftover", []byte("x")))

	removed, err := h.engine.PruneOrphanBlobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"leftover"}, removed)
	_, ok, err := h.blobs.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_EnqueueRejectsBadInput(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.engine.EnqueueMedia(context.Background(), MediaCapture{VisitID: "v", Kind: queue.KindAIJob, Path: "x"})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidArg))
	_, err = h.engine.EnqueueMedia(context.Background(), MediaCapture{Kind: queue.KindPhoto, Path: "x"})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidArg))
	ids, err := h.blobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_StartDrainsWhenOnline(t *testing.T) {
	h := newHarness(t, false)
	h.enqueuePhoto(t, 0)
	h.enqueuePhoto(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.Start(ctx)
	defer h.engine.Stop()

	h.mon.Set(true)
	require.Eventually(t, func() bool {
		n, err := h.queue.Len(context.Background())
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, h.remote.uploadCalls(), 2)
}

func TestEngine_DurableAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	open := func() (queue.Store, blob.Store) {
		q, err := queue.NewSQLiteStore(ctx, filepath.Join(dir, "queue.db"))
		require.NoError(t, err)
		b, err := blob.NewFileStore(filepath.Join(dir, "blobs"))
		require.NoError(t, err)
		return q, b
	}

	q, b := open()
	e := New(q, b, &fakeRemote{}, connectivity.NewMonitor(false), Config{})
	_, err := e.EnqueueMedia(ctx, MediaCapture{
		VisitID: "visit-1", Kind: queue.KindPhoto, Path: "t1/visit-1/photos/photo_0.jpg", Data: []byte("jpeg"),
	})
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, b.Close())

	q, b = open()
	defer q.Close()
	defer b.Close()
	r := &fakeRemote{}
	e = New(q, b, r, connectivity.NewMonitor(true), Config{})
	report, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, []string{"t1/visit-1/photos/photo_0.jpg"}, r.uploadCalls())
}
