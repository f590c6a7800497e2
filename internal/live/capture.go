package live

import (
	"context"
	"errors"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/amirhossein5/rollcall/internal/attendance"
	"github.com/amirhossein5/rollcall/internal/imagefile"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/google/uuid"
)

const snapshotStamp = "20060102_150405"

// capture saves the raw frame, runs the photo pipeline on it at full
// resolution, publishes that capture's report and folds its present set into
// the session.
func (c *Controller) capture(ctx context.Context, img image.Image) {
	c.log.Info(ctx, "capturing snapshot")
	c.metrics.IncCaptures()
	c.mu.Lock()
	c.captures++
	c.mu.Unlock()

	at := c.now()
	if c.opts.SnapshotDir != "" {
		path := snapshotPath(c.opts.SnapshotDir, at)
		if err := imagefile.SaveJPEG(path, img); err != nil {
			c.log.Warn(ctx, "saving snapshot failed", logger.String("path", path), logger.Error(err))
		} else {
			c.log.Info(ctx, "snapshot saved", logger.String("path", path))
		}
	}

	res, err := c.photo.Run(ctx, img)
	if err != nil {
		c.log.Warn(ctx, "snapshot processing failed", logger.Error(err))
		return
	}
	c.log.Info(ctx, res.Message)

	if c.opts.DebugImage != "" {
		if err := imagefile.SaveJPEG(c.opts.DebugImage, res.Annotated); err != nil {
			c.log.Warn(ctx, "saving debug image failed", logger.Error(err))
		}
	}

	if res.Present.Len() > 0 && c.publisher != nil {
		r := attendance.Reconcile(c.roster.All(), res.Present, at)
		if _, err := c.publisher.Publish(ctx, r, attendance.PhotoPrefix); err != nil {
			c.log.Error(ctx, "failed to save snapshot report", logger.Error(err))
		}
	}

	for _, s := range res.Present.Sightings() {
		c.arrive(ctx, s)
	}
}

// snapshotPath names a snapshot after at. A second capture within the same
// second gets a short unique suffix instead of replacing the first.
func snapshotPath(dir string, at time.Time) string {
	base := filepath.Join(dir, "snapshot_"+at.Format(snapshotStamp))
	if _, err := os.Stat(base + ".jpg"); errors.Is(err, fs.ErrNotExist) {
		return base + ".jpg"
	}
	return base + "_" + uuid.NewString()[:8] + ".jpg"
}
