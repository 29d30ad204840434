package inject

import (
	"context"

	"github.com/hpalin2/picarnav/services/vision"
)

// Detector is an injectable detector.
type Detector struct {
	vision.Detector
	DetectFunc func(ctx context.Context) ([]vision.Detection, error)
}

// Detect calls the injected Detect or the real version.
func (d *Detector) Detect(ctx context.Context) ([]vision.Detection, error) {
	if d.DetectFunc == nil {
		return d.Detector.Detect(ctx)
	}
	return d.DetectFunc(ctx)
}

// VisionSource hands out whatever LatestFunc returns.
type VisionSource struct {
	LatestFunc func() *vision.Snapshot
}

// Latest calls LatestFunc, returning nil when it is unset.
func (v *VisionSource) Latest() *vision.Snapshot {
	if v.LatestFunc == nil {
		return nil
	}
	return v.LatestFunc()
}
