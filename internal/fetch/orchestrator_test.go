package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tgfetch/tgfetch/internal/storage"
	"github.com/tgfetch/tgfetch/internal/telemetry"
)

// ---------------------------------------------------------------------------
// fakes

type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string]*storage.CacheEntry
	putErr  error
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string]*storage.CacheEntry)}
}

func (r *memCacheRepo) Get(ctx context.Context, key string) (*storage.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.ExpiresAt.Before(time.Now()) {
		return nil, storage.ErrNotFound
	}

	return entry, nil
}

func (r *memCacheRepo) Put(ctx context.Context, key, filePath string, ttl time.Duration) error {
	if r.putErr != nil {
		return r.putErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = &storage.CacheEntry{Key: key, FilePath: filePath, ExpiresAt: time.Now().Add(ttl)}

	return nil
}

func (r *memCacheRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

type memLockRepo struct {
	mu    sync.Mutex
	locks map[int64]time.Time
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{locks: make(map[int64]time.Time)}
}

func (r *memLockRepo) Acquire(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if until, ok := r.locks[userID]; ok && until.After(time.Now()) {
		return false, nil
	}

	r.locks[userID] = time.Now().Add(ttl)

	return true, nil
}

func (r *memLockRepo) Extend(ctx context.Context, userID int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.locks[userID] = time.Now().Add(ttl)

	return nil
}

func (r *memLockRepo) Release(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locks, userID)

	return nil
}

func (r *memLockRepo) held(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.locks[userID]

	return ok && until.After(time.Now())
}

type stubExtractor struct {
	mu     sync.Mutex
	calls  int
	result *Result
	err    error
	delay  time.Duration
}

func (e *stubExtractor) Extract(ctx context.Context, url string, kind Kind) (*Result, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	if e.err != nil {
		return nil, e.err
	}

	return e.result, nil
}

func (e *stubExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

type sentFile struct {
	chatID  int64
	path    string
	caption string
}

type recordingDeliverer struct {
	mu       sync.Mutex
	texts    []string
	audios   []sentFile
	videos   []sentFile
	docs     []sentFile
	audioErr error
	videoErr error
}

func (d *recordingDeliverer) SendText(ctx context.Context, chatID int64, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.texts = append(d.texts, text)

	return nil
}

func (d *recordingDeliverer) SendAudio(ctx context.Context, chatID int64, filePath, caption string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.audioErr != nil {
		return d.audioErr
	}

	d.audios = append(d.audios, sentFile{chatID, filePath, caption})

	return nil
}

func (d *recordingDeliverer) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.videoErr != nil {
		return d.videoErr
	}

	d.videos = append(d.videos, sentFile{chatID, filePath, caption})

	return nil
}

func (d *recordingDeliverer) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.docs = append(d.docs, sentFile{chatID, filePath, caption})

	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, content)

	return nil
}

// ---------------------------------------------------------------------------
// harness

type harness struct {
	orch      *Orchestrator
	cacheRepo *memCacheRepo
	lockRepo  *memLockRepo
	extractor *stubExtractor
	deliverer *recordingDeliverer
	notifier  *recordingNotifier
}

func newHarness(maxUploadBytes int64) *harness {
	h := &harness{
		cacheRepo: newMemCacheRepo(),
		lockRepo:  newMemLockRepo(),
		extractor: &stubExtractor{},
		deliverer: &recordingDeliverer{},
		notifier:  &recordingNotifier{},
	}

	h.orch = NewOrchestrator(
		NewCache(h.cacheRepo, time.Hour),
		NewGuard(h.lockRepo, 30*time.Second, 10*time.Minute),
		h.extractor,
		h.deliverer,
		h.notifier,
		&telemetry.Telemetry{},
		maxUploadBytes,
	)

	return h
}

func writeFileOfSize(t *testing.T, path string, size int64) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

const testThreshold = 1900 * 1024 * 1024

// ---------------------------------------------------------------------------
// scenarios

func TestFetch_AudioMissExtractsAndDelivers(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Song.mp3")
	writeFileOfSize(t, path, 5_000_000)
	h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: 5_000_000}

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}
	require.NoError(t, h.orch.Fetch(context.Background(), req))

	assert.Equal(t, 1, h.extractor.callCount())
	require.Len(t, h.deliverer.audios, 1)
	assert.Equal(t, path, h.deliverer.audios[0].path)
	assert.Equal(t, "Song\n4.8 MB", h.deliverer.audios[0].caption)

	// Cache now maps (url, audio) to the file.
	cached, ok, err := NewCache(h.cacheRepo, time.Hour).Lookup(context.Background(), "https://x/video1", KindAudio)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, path, cached)

	// Lock is free again.
	assert.False(t, h.lockRepo.held(1))
}

func TestFetch_CacheHitSkipsExtractor(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Song.mp3")
	writeFileOfSize(t, path, 5_000_000)
	h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: 5_000_000}

	ctx := context.Background()
	require.NoError(t, h.orch.Fetch(ctx, Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}))

	// A different user repeats the same (url, kind).
	require.NoError(t, h.orch.Fetch(ctx, Request{UserID: 2, ChatID: 20, URL: "https://x/video1", Kind: KindAudio}))

	assert.Equal(t, 1, h.extractor.callCount(), "cache hit must not invoke the extractor")
	require.Len(t, h.deliverer.audios, 2)
	assert.Equal(t, path, h.deliverer.audios[1].path)
	assert.Equal(t, "Song\n4.8 MB", h.deliverer.audios[1].caption)
}

func TestFetch_LinkEchoesImmediately(t *testing.T) {
	h := newHarness(testThreshold)

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindLink}
	require.NoError(t, h.orch.Fetch(context.Background(), req))

	assert.Equal(t, 0, h.extractor.callCount())
	assert.Equal(t, 0, h.cacheRepo.len())
	assert.False(t, h.lockRepo.held(1))
	require.Len(t, h.deliverer.texts, 1)
	assert.Contains(t, h.deliverer.texts[0], "https://x/video1")
}

func TestFetch_ExtractionErrorIsReported(t *testing.T) {
	h := newHarness(testThreshold)
	h.extractor.err = &ExtractionError{URL: "https://x/video1", Err: errors.New("network timeout")}

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindVideo}
	err := h.orch.Fetch(context.Background(), req)

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)

	// User sees the raw cause, the operator gets a copy, the cache is
	// untouched and the lock is released.
	require.Len(t, h.deliverer.texts, 1)
	assert.Contains(t, h.deliverer.texts[0], "network timeout")
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "network timeout")
	assert.Equal(t, 0, h.cacheRepo.len())
	assert.False(t, h.lockRepo.held(1))
}

func TestFetch_SecondConcurrentFetchIsRejected(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Clip.mp4")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Clip", SizeBytes: 1000}
	h.extractor.delay = 200 * time.Millisecond

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindVideo}

	errs := make(chan error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs <- h.orch.Fetch(context.Background(), req)
		}()
	}

	wg.Wait()
	close(errs)

	var busy, succeeded int
	for err := range errs {
		switch {
		case errors.Is(err, ErrFetchInProgress):
			busy++
		case err == nil:
			succeeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, busy)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.extractor.callCount())

	// The user can fetch again once the first attempt finished.
	ok, err := h.lockRepo.Acquire(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetch_DifferentUsersRunIndependently(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Clip.mp4")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Clip", SizeBytes: 1000}

	ctx := context.Background()
	require.NoError(t, h.orch.Fetch(ctx, Request{UserID: 1, ChatID: 10, URL: "https://a", Kind: KindVideo}))
	require.NoError(t, h.orch.Fetch(ctx, Request{UserID: 2, ChatID: 20, URL: "https://b", Kind: KindVideo}))

	assert.Len(t, h.deliverer.videos, 2)
}

func TestFetch_SizeBoundary(t *testing.T) {
	const threshold = 1000

	t.Run("at threshold delivers inline", func(t *testing.T) {
		h := newHarness(threshold)

		path := filepath.Join(t.TempDir(), "Song.mp3")
		writeFileOfSize(t, path, threshold)
		h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: threshold}

		req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}
		require.NoError(t, h.orch.Fetch(context.Background(), req))

		assert.Len(t, h.deliverer.audios, 1)
		assert.Empty(t, h.deliverer.texts)
	})

	t.Run("one byte over falls back to link", func(t *testing.T) {
		h := newHarness(threshold)

		path := filepath.Join(t.TempDir(), "Song.mp3")
		writeFileOfSize(t, path, threshold+1)
		h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: threshold + 1}

		req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}
		require.NoError(t, h.orch.Fetch(context.Background(), req))

		assert.Empty(t, h.deliverer.audios)
		require.Len(t, h.deliverer.texts, 1)
		assert.Contains(t, h.deliverer.texts[0], "https://x/video1")
		assert.False(t, h.lockRepo.held(1))
	})
}

func TestFetch_VideoFallsBackToDocument(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Clip.mp4")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Clip", SizeBytes: 1000}
	h.deliverer.videoErr = &DeliveryError{Attachment: "video", Err: errors.New("wrong file type")}

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindVideo}
	require.NoError(t, h.orch.Fetch(context.Background(), req))

	// Fallback is silent: the document goes out, the user sees no error and
	// the operator is not notified.
	assert.Empty(t, h.deliverer.videos)
	require.Len(t, h.deliverer.docs, 1)
	assert.Equal(t, path, h.deliverer.docs[0].path)
	assert.Empty(t, h.deliverer.texts)
	assert.Empty(t, h.notifier.messages)
}

func TestFetch_UntypedVideoFaultIsReported(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Clip.mp4")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Clip", SizeBytes: 1000}
	h.deliverer.videoErr = errors.New("connection reset")

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindVideo}
	require.Error(t, h.orch.Fetch(context.Background(), req))

	assert.Empty(t, h.deliverer.docs, "untyped faults must not trigger the document fallback")
	require.Len(t, h.deliverer.texts, 1)
	require.Len(t, h.notifier.messages, 1)
	assert.False(t, h.lockRepo.held(1))
}

func TestFetch_CachePersistsBeforeDeliveryFailure(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Song.mp3")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: 1000}
	h.deliverer.audioErr = errors.New("connection reset")

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}
	require.Error(t, h.orch.Fetch(context.Background(), req))

	// The entry survived the failed delivery, so a retry hits the cache.
	_, ok, err := NewCache(h.cacheRepo, time.Hour).Lookup(context.Background(), "https://x/video1", KindAudio)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, h.lockRepo.held(1))
}

func TestFetch_CacheStoreFailureIsReported(t *testing.T) {
	h := newHarness(testThreshold)

	path := filepath.Join(t.TempDir(), "Song.mp3")
	writeFileOfSize(t, path, 1000)
	h.extractor.result = &Result{FilePath: path, Title: "Song", SizeBytes: 1000}
	h.cacheRepo.putErr = errors.New("disk I/O error")

	req := Request{UserID: 1, ChatID: 10, URL: "https://x/video1", Kind: KindAudio}
	require.Error(t, h.orch.Fetch(context.Background(), req))

	assert.Empty(t, h.deliverer.audios)
	assert.False(t, h.lockRepo.held(1))
}
