package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/internal/infrastructure"
	"github.com/yourusername/reel-extract-go/pkg/logger"
)

// fakeStrategy counts calls and delegates to fn
type fakeStrategy struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, dest string) (*domain.Media, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context, req domain.DownloadRequest, dest string) (*domain.Media, error) {
	f.calls.Add(1)
	return f.fn(ctx, dest)
}

func writes(size int, meta domain.Metadata) func(context.Context, string) (*domain.Media, error) {
	return func(_ context.Context, dest string) (*domain.Media, error) {
		if err := os.WriteFile(dest, make([]byte, size), 0644); err != nil {
			return nil, err
		}
		return &domain.Media{Path: dest, SizeBytes: int64(size), Metadata: meta}, nil
	}
}

func fails(msg string) func(context.Context, string) (*domain.Media, error) {
	return func(context.Context, string) (*domain.Media, error) {
		return nil, errors.New(msg)
	}
}

// mockFetchRepo records history entries in memory
type mockFetchRepo struct {
	mu      sync.Mutex
	records []*domain.FetchRecord
}

func (m *mockFetchRepo) Create(record *domain.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockFetchRepo) FindByID(id string) (*domain.FetchRecord, error) { return nil, nil }

func (m *mockFetchRepo) FindRecent(filters map[string]interface{}, limit int) ([]*domain.FetchRecord, error) {
	return m.records, nil
}

func (m *mockFetchRepo) GetStats() (*domain.FetchStats, error) { return &domain.FetchStats{}, nil }

type harness struct {
	orch  *FetchOrchestrator
	temps *infrastructure.TempFileManager
	repo  *mockFetchRepo
	dir   string
}

func newHarness(t *testing.T, maxSize int64, strategies ...domain.Strategy) *harness {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tmp")
	temps, err := infrastructure.NewTempFileManager(dir)
	require.NoError(t, err)

	events, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: filepath.Join(t.TempDir(), "logs")})
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	repo := &mockFetchRepo{}
	orch := NewFetchOrchestrator(
		map[domain.Platform][]domain.Strategy{domain.PlatformTikTok: strategies},
		temps, repo,
		&domain.FetchConfig{MaxSizeBytes: maxSize, AttemptTimeout: 2 * time.Second},
		nil, events)
	return &harness{orch: orch, temps: temps, repo: repo, dir: dir}
}

func (h *harness) assertClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp directory must be empty after fetch")
	assert.Equal(t, 0, h.temps.ActiveCount())
}

func tiktokReq() domain.DownloadRequest {
	return domain.NewDownloadRequest("https://www.tiktok.com/@alice/video/7237370304337628442")
}

func TestFetch_FirstSuccessShortCircuits(t *testing.T) {
	first := &fakeStrategy{name: "tiktok_native", fn: writes(100, domain.Metadata{Uploader: "alice"})}
	second := &fakeStrategy{name: "ytdlp", fn: writes(100, domain.Metadata{})}
	h := newHarness(t, 1000, first, second)

	var got *domain.Artifact
	var existed bool
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(a *domain.Artifact) error {
		got = a
		_, statErr := os.Stat(a.Path)
		existed = statErr == nil
		return nil
	})

	require.NoError(t, err)
	assert.True(t, existed, "artifact must exist while consumed")
	assert.Equal(t, "tiktok_native", got.Strategy)
	assert.Equal(t, int64(100), got.SizeBytes)
	assert.Equal(t, "TikTok Video\nAuthor: alice", got.Caption())
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), second.calls.Load())
	assert.NoFileExists(t, got.Path)
	h.assertClean(t)

	require.Len(t, h.repo.records, 1)
	assert.Equal(t, domain.StatusSucceeded, h.repo.records[0].Status)
	assert.Equal(t, 1, h.repo.records[0].Attempts)
}

func TestFetch_FallsBackToSecond(t *testing.T) {
	first := &fakeStrategy{name: "tiktok_native", fn: fails("resolver down")}
	second := &fakeStrategy{name: "ytdlp", fn: writes(10, domain.Metadata{ID: "42"})}
	third := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, first, second, third)

	var got *domain.Artifact
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(a *domain.Artifact) error {
		got = a
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ytdlp", got.Strategy)
	assert.Equal(t, "tiktok_42.mp4", got.FileName())
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, int32(0), third.calls.Load())
	h.assertClean(t)

	assert.Equal(t, 2, h.repo.records[0].Attempts)
	assert.Equal(t, "ytdlp", h.repo.records[0].Strategy)
}

func TestFetch_AllFail(t *testing.T) {
	first := &fakeStrategy{name: "tiktok_native", fn: func(_ context.Context, dest string) (*domain.Media, error) {
		// leaves a partial file behind
		_ = os.WriteFile(dest, []byte("partial"), 0644)
		_ = os.WriteFile(dest+".part", []byte("partial"), 0644)
		return nil, errors.New("connection reset")
	}}
	second := &fakeStrategy{name: "html", fn: fails("no video url found in page")}
	h := newHarness(t, 1000, first, second)

	consumed := false
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(*domain.Artifact) error {
		consumed = true
		return nil
	})

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.ReasonAllMethodsExhausted, fetchErr.Reason)
	assert.Equal(t, "html", fetchErr.Strategy)
	assert.Contains(t, fetchErr.Detail, "no video url found")
	require.Len(t, fetchErr.Attempts, 2)
	assert.Equal(t, "tiktok_native", fetchErr.Attempts[0].Strategy)
	assert.Contains(t, fetchErr.Attempts[0].Detail, "connection reset")
	assert.False(t, consumed)
	h.assertClean(t)

	require.Len(t, h.repo.records, 1)
	assert.Equal(t, domain.ReasonAllMethodsExhausted, h.repo.records[0].Reason)
}

func TestFetch_TooLargeIsTerminal(t *testing.T) {
	first := &fakeStrategy{name: "tiktok_native", fn: writes(2048, domain.Metadata{})}
	second := &fakeStrategy{name: "ytdlp", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1024, first, second)

	consumed := false
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(*domain.Artifact) error {
		consumed = true
		return nil
	})

	assert.True(t, domain.IsReason(err, domain.ReasonTooLarge))
	assert.False(t, consumed, "consumer must not see oversized videos")
	assert.Equal(t, int32(0), second.calls.Load(), "too large stops the chain")
	h.assertClean(t)
}

func TestFetch_SizeMeasuredOnDisk(t *testing.T) {
	// strategy under-reports its size
	liar := &fakeStrategy{name: "html", fn: func(_ context.Context, dest string) (*domain.Media, error) {
		require.NoError(t, os.WriteFile(dest, make([]byte, 4096), 0644))
		return &domain.Media{Path: dest, SizeBytes: 1}, nil
	}}
	h := newHarness(t, 1024, liar)

	err := h.orch.Fetch(context.Background(), tiktokReq(), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonTooLarge))
	h.assertClean(t)
}

func TestFetch_ExactlyAtLimitIsAccepted(t *testing.T) {
	h := newHarness(t, 1024, &fakeStrategy{name: "html", fn: writes(1024, domain.Metadata{})})
	assert.NoError(t, h.orch.Fetch(context.Background(), tiktokReq(), nil))
	h.assertClean(t)
}

func TestFetch_PanicIsContained(t *testing.T) {
	crasher := &fakeStrategy{name: "tiktok_native", fn: func(_ context.Context, dest string) (*domain.Media, error) {
		_ = os.WriteFile(dest, []byte("half a video"), 0644)
		panic("nil map write")
	}}
	backup := &fakeStrategy{name: "ytdlp", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, crasher, backup)

	var got *domain.Artifact
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(a *domain.Artifact) error {
		got = a
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ytdlp", got.Strategy)
	h.assertClean(t)
}

func TestFetch_SuccessWithoutFile(t *testing.T) {
	ghost := &fakeStrategy{name: "html", fn: func(_ context.Context, dest string) (*domain.Media, error) {
		return &domain.Media{Path: dest, SizeBytes: 10}, nil
	}}
	h := newHarness(t, 1000, ghost)

	err := h.orch.Fetch(context.Background(), tiktokReq(), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonAllMethodsExhausted))
}

func TestFetch_UnsupportedPlatform(t *testing.T) {
	strategy := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, strategy)

	req := domain.NewDownloadRequest("https://www.youtube.com/watch?v=abc")
	err := h.orch.Fetch(context.Background(), req, nil)

	assert.True(t, domain.IsReason(err, domain.ReasonUnsupportedPlatform))
	assert.Equal(t, int32(0), strategy.calls.Load())

	// supported platform without a configured chain
	err = h.orch.Fetch(context.Background(), domain.NewDownloadRequest("https://www.instagram.com/p/Cabc/"), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonUnsupportedPlatform))
}

func TestFetch_CancelledBeforeStart(t *testing.T) {
	strategy := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, strategy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.orch.Fetch(ctx, tiktokReq(), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), strategy.calls.Load())
}

func TestFetch_CancelledMidAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := &fakeStrategy{name: "ytdlp", fn: func(ctx context.Context, dest string) (*domain.Media, error) {
		_ = os.WriteFile(dest+".part", []byte("downloading"), 0644)
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	next := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, blocking, next)

	err := h.orch.Fetch(ctx, tiktokReq(), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonCancelled))
	assert.Equal(t, int32(0), next.calls.Load())
	h.assertClean(t)
}

func TestFetch_AttemptTimeoutMovesOn(t *testing.T) {
	slow := &fakeStrategy{name: "ytdlp", fn: func(ctx context.Context, dest string) (*domain.Media, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	fast := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, slow, fast)
	h.orch.config.AttemptTimeout = 20 * time.Millisecond

	var got *domain.Artifact
	err := h.orch.Fetch(context.Background(), tiktokReq(), func(a *domain.Artifact) error {
		got = a
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "html", got.Strategy)
}

func TestFetch_ConsumerErrorStillCleansUp(t *testing.T) {
	h := newHarness(t, 1000, &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})})
	sendErr := errors.New("chat upload failed")

	err := h.orch.Fetch(context.Background(), tiktokReq(), func(*domain.Artifact) error { return sendErr })
	assert.ErrorIs(t, err, sendErr)
	h.assertClean(t)
}

func TestFetch_RequestTimeoutIsExhausted(t *testing.T) {
	stuck := &fakeStrategy{name: "ytdlp", fn: func(ctx context.Context, dest string) (*domain.Media, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	next := &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})}
	h := newHarness(t, 1000, stuck, next)
	h.orch.config.RequestTimeout = 30 * time.Millisecond

	err := h.orch.Fetch(context.Background(), tiktokReq(), nil)
	require.Error(t, err)
	assert.True(t, domain.IsReason(err, domain.ReasonAllMethodsExhausted))
	assert.False(t, domain.IsReason(err, domain.ReasonCancelled))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), next.calls.Load())

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "ytdlp", fetchErr.Strategy)
	require.Len(t, fetchErr.Attempts, 1)

	require.Len(t, h.repo.records, 1)
	assert.Equal(t, domain.ReasonAllMethodsExhausted, h.repo.records[0].Reason)
	h.assertClean(t)
}

func TestFetch_CallerDeadlineIsCancelled(t *testing.T) {
	stuck := &fakeStrategy{name: "ytdlp", fn: func(ctx context.Context, dest string) (*domain.Media, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, 1000, stuck)
	h.orch.config.RequestTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := h.orch.Fetch(ctx, tiktokReq(), nil)
	assert.True(t, domain.IsReason(err, domain.ReasonCancelled))
	h.assertClean(t)
}

func TestFetch_ConsumerPanicIsRecorded(t *testing.T) {
	h := newHarness(t, 1000, &fakeStrategy{name: "html", fn: writes(10, domain.Metadata{})})

	assert.PanicsWithValue(t, "chat client exploded", func() {
		_ = h.orch.Fetch(context.Background(), tiktokReq(), func(*domain.Artifact) error {
			panic("chat client exploded")
		})
	})

	require.Len(t, h.repo.records, 1)
	rec := h.repo.records[0]
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "html", rec.Strategy)
	assert.Contains(t, rec.ErrorMessage, "chat client exploded")
	h.assertClean(t)
}

func TestFetch_ConcurrentRequestsDoNotCollide(t *testing.T) {
	strategy := &fakeStrategy{name: "html", fn: writes(64, domain.Metadata{})}
	h := newHarness(t, 1000, strategy)
	h.orch.sem = make(chan struct{}, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.orch.Fetch(context.Background(), tiktokReq(), func(a *domain.Artifact) error {
				data, err := os.ReadFile(a.Path)
				if err != nil {
					return err
				}
				if len(data) != 64 {
					return errors.New("corrupted artifact")
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	h.assertClean(t)
	assert.Len(t, h.repo.records, 8)
}

func TestOrchestrator_ReadyAndChainNames(t *testing.T) {
	noop := func(context.Context, domain.DownloadRequest, string) (*domain.Media, error) {
		return nil, errors.New("unused")
	}
	h := newHarness(t, 1000,
		domain.StrategyFunc{ID: "tiktok_native", Fn: noop},
		domain.StrategyFunc{ID: "ytdlp", Fn: noop})

	assert.NoError(t, h.orch.Ready())
	assert.Equal(t, []string{"tiktok_native", "ytdlp"}, h.orch.ChainNames(domain.PlatformTikTok))
	assert.Empty(t, h.orch.ChainNames(domain.PlatformInstagram))
}
