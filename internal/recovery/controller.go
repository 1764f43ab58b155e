package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/manifest"
)

// ScanStatus reports a scan session's lifecycle state, per spec.md §6's
// get_scan_status operation.
type ScanStatus string

const (
	StatusRunning   ScanStatus = "running"
	StatusComplete  ScanStatus = "complete"
	StatusCancelled ScanStatus = "cancelled"
	StatusFailed    ScanStatus = "failed"
)

// session tracks one in-flight or finished scan, keyed by ScanID.
type session struct {
	mu       sync.Mutex
	status   ScanStatus
	progress ProgressEvent
	manifest *manifest.Manifest
	err      error
	cancel   context.CancelFunc
}

// Controller implements the external control surface spec.md §6 names:
// start_scan, get_scan_status, cancel_scan, get_manifest, and extract.
// StartScan runs Execute in its own goroutine; Extract runs Extract
// synchronously in the caller's goroutine. The CLI does not use it: it
// calls Execute and Extract directly.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*session
	log      *slog.Logger
}

func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{sessions: map[string]*session{}, log: log}
}

// StartScan begins a scan in the background, matching the teacher's
// scan.GenSessionID naming convention for the returned scan ID.
func (c *Controller) StartScan(src block.Source, opts Options) string {
	id := "scan_" + time.Now().Format("20060102_150405")

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{status: StatusRunning, cancel: cancel}

	c.mu.Lock()
	c.sessions[id] = sess
	c.mu.Unlock()

	go func() {
		m, err := Execute(ctx, src, opts, func(p ProgressEvent) {
			sess.mu.Lock()
			sess.progress = p
			sess.mu.Unlock()
		})

		sess.mu.Lock()
		defer sess.mu.Unlock()
		sess.manifest = m
		switch {
		case ctx.Err() == context.Canceled:
			sess.status = StatusCancelled
		case err != nil:
			sess.status = StatusFailed
			sess.err = err
		default:
			sess.status = StatusComplete
		}
	}()

	return id
}

// GetScanStatus reports the current phase/progress for scanID, per
// spec.md §6's progress event shape.
func (c *Controller) GetScanStatus(scanID string) (ScanStatus, ProgressEvent, error) {
	sess, err := c.get(scanID)
	if err != nil {
		return "", ProgressEvent{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.status, sess.progress, nil
}

// CancelScan requests cooperative cancellation; the running Execute call
// finishes its current carve chunk before honoring it (a metadata walk
// already under way runs to the end of its partition first), per
// spec.md §4.I, retaining whatever candidates were already found.
func (c *Controller) CancelScan(scanID string) error {
	sess, err := c.get(scanID)
	if err != nil {
		return err
	}
	sess.cancel()
	return nil
}

// GetManifest returns the finished manifest for scanID, or an error if
// the scan is still running or never produced one.
func (c *Controller) GetManifest(scanID string) (*manifest.Manifest, error) {
	sess, err := c.get(scanID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status == StatusRunning {
		return nil, fmt.Errorf("recovery: scan %s still running", scanID)
	}
	if sess.manifest == nil {
		return nil, fmt.Errorf("recovery: scan %s produced no manifest: %w", scanID, sess.err)
	}
	return sess.manifest, nil
}

// Extract runs the Extractor against scanID's finished manifest, per
// spec.md §6's extract operation.
func (c *Controller) Extract(ctx context.Context, scanID, diskPath string, names []string, outDir string) (*ExtractResult, error) {
	m, err := c.GetManifest(scanID)
	if err != nil {
		return nil, err
	}
	return Extract(ctx, diskPath, m, names, outDir, c.log)
}

func (c *Controller) get(scanID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[scanID]
	if !ok {
		return nil, fmt.Errorf("recovery: unknown scan id %q", scanID)
	}
	return sess, nil
}
