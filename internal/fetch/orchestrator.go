package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tgfetch/tgfetch/internal/logctx"
	"github.com/tgfetch/tgfetch/internal/notifier"
	"github.com/tgfetch/tgfetch/internal/telemetry"
)

// Result is what the extraction engine produced for a (url, kind) request.
// Ownership of the file passes to the orchestrator; it may be renamed but is
// never deleted, since the cache relies on it until expiry.
type Result struct {
	FilePath  string
	Title     string
	SizeBytes int64
}

// Extractor materializes a file on local storage for a URL and kind.
type Extractor interface {
	Extract(ctx context.Context, url string, kind Kind) (*Result, error)
}

// Deliverer is the outbound side of the chat transport. SendVideo reports a
// typed *DeliveryError when the transport rejects the attachment type.
type Deliverer interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendAudio(ctx context.Context, chatID int64, filePath, caption string) error
	SendVideo(ctx context.Context, chatID int64, filePath, caption string) error
	SendDocument(ctx context.Context, chatID int64, filePath, caption string) error
}

// Request is one user's fetch of one URL.
type Request struct {
	UserID int64
	ChatID int64
	URL    string
	Kind   Kind
}

// Orchestrator runs the fetch pipeline: per-user lock, cache check,
// extraction on miss, cache persist, size-gated delivery.
type Orchestrator struct {
	cache          *Cache
	guard          *Guard
	extractor      Extractor
	deliverer      Deliverer
	notifier       notifier.Notifier
	tel            *telemetry.Telemetry
	maxUploadBytes int64
}

func NewOrchestrator(
	cache *Cache,
	guard *Guard,
	extractor Extractor,
	deliverer Deliverer,
	notif notifier.Notifier,
	tel *telemetry.Telemetry,
	maxUploadBytes int64,
) *Orchestrator {
	return &Orchestrator{
		cache:          cache,
		guard:          guard,
		extractor:      extractor,
		deliverer:      deliverer,
		notifier:       notif,
		tel:            tel,
		maxUploadBytes: maxUploadBytes,
	}
}

// Fetch runs one request through the pipeline and reports the outcome to the
// requesting chat. A second concurrent fetch for the same user returns
// ErrFetchInProgress without touching the lock. Every path that acquired the
// lock releases it exactly once.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) error {
	logger := logctx.LoggerFromContext(ctx).With("user_id", req.UserID, "kind", req.Kind.String())

	// Raw link requests never touch the lock or the cache.
	if req.Kind == KindLink {
		return o.deliverer.SendText(ctx, req.ChatID, "Here is the source link:\n"+req.URL)
	}

	ok, err := o.guard.TryAcquire(ctx, req.UserID)
	if err != nil {
		o.report(ctx, req, err)

		return err
	}

	if !ok {
		logger.Info("fetch rejected, download already in flight")

		return ErrFetchInProgress
	}

	start := time.Now()

	o.tel.FetchStarted(ctx)

	defer func() {
		o.tel.FetchFinished(ctx)

		if err := o.guard.Release(ctx, req.UserID); err != nil {
			logger.Error("failed to release user lock", "err", err)
		}
	}()

	err = o.process(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	o.tel.RecordFetch(ctx, req.Kind.String(), outcome, time.Since(start))

	if err != nil {
		logger.Error("fetch failed", "url", req.URL, "err", err)
		o.report(ctx, req, err)

		return err
	}

	return nil
}

// process covers CacheCheck through Deliver for a request that holds the lock.
func (o *Orchestrator) process(ctx context.Context, req Request) error {
	logger := logctx.LoggerFromContext(ctx).With("user_id", req.UserID, "kind", req.Kind.String())

	// The short acquisition TTL did its job; give the download its full
	// duration budget before any long-running work starts.
	if err := o.guard.Refresh(ctx, req.UserID); err != nil {
		return err
	}

	path, hit, err := o.cache.Lookup(ctx, req.URL, req.Kind)
	if err != nil {
		return err
	}

	o.tel.RecordCacheLookup(ctx, hit)

	var title string

	if hit {
		title = titleFromPath(path)

		logger.Info("cache hit", "path", path)
	} else {
		res, err := o.extractor.Extract(ctx, req.URL, req.Kind)
		if err != nil {
			return err
		}

		path, title = res.FilePath, res.Title

		logger.Info("extracted file", "path", path, "size", humanize.Bytes(uint64(res.SizeBytes)))

		// Persist before delivery so a delivery failure leaves the cache
		// warm for the retry.
		if err := o.cache.Store(ctx, req.URL, req.Kind, path); err != nil {
			return err
		}
	}

	return o.deliver(ctx, req, path, title)
}

// deliver applies the size gate and picks the attachment type.
func (o *Orchestrator) deliver(ctx context.Context, req Request, path, title string) error {
	logger := logctx.LoggerFromContext(ctx).With("user_id", req.UserID)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}

	size := info.Size()
	if size > o.maxUploadBytes {
		logger.Info("file exceeds upload limit, sending source link",
			"path", path, "size", humanize.Bytes(uint64(size)))

		return o.deliverer.SendText(ctx, req.ChatID,
			"The file is too large to send over the Bot API. Here is the source link:\n"+req.URL)
	}

	caption := title + "\n" + HumanSize(size)

	switch req.Kind {
	case KindAudio:
		return o.deliverer.SendAudio(ctx, req.ChatID, path, caption)
	case KindVideo:
		err := o.deliverer.SendVideo(ctx, req.ChatID, path, caption)

		var dErr *DeliveryError
		if errors.As(err, &dErr) {
			logger.Warn("video attachment rejected, retrying as document", "err", err)

			return o.deliverer.SendDocument(ctx, req.ChatID, path, caption)
		}

		return err
	case KindLink:
		// Handled before the lock was taken.
		return nil
	}

	return fmt.Errorf("unhandled kind %q", req.Kind)
}

// report surfaces a failure to the user and mirrors it to the operator
// channel. Both sends are best-effort.
func (o *Orchestrator) report(ctx context.Context, req Request, cause error) {
	logger := logctx.LoggerFromContext(ctx).With("user_id", req.UserID)

	msg := fmt.Sprintf("😬 Error: %s\nTry another format or link.", cause)
	if err := o.deliverer.SendText(ctx, req.ChatID, msg); err != nil {
		logger.Error("failed to report error to user", "err", err)
	}

	if o.notifier == nil {
		return
	}

	if err := o.notifier.Notify(fmt.Sprintf("fetch error for user %d\n%s", req.UserID, cause)); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)

	return base[:len(base)-len(filepath.Ext(base))]
}
