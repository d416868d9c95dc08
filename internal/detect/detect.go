// Package detect declares the contract for the external neural object
// detector and tracker. The model and tracking algorithm are out of scope
// for this system (spec.md §1): callers supply a Detector implementation and
// the pipeline never type-switches on it, the same way
// github.com/ausocean/av/device.AVDevice is consumed as a black box by
// revid's pipeline.
package detect

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ausocean/aerialtrack/internal/frame"
)

// Detector runs object detection and, when supported, multi-object tracking
// on a single decoded frame. Implementations MUST preserve track identifiers
// across calls for the same physical object (spec.md §3).
type Detector interface {
	// Detect returns the detections found in img at the given confidence
	// threshold. classes, when non-nil, restricts results to that set of
	// class IDs.
	Detect(ctx context.Context, img gocv.Mat, confThreshold float64, classes []int) ([]frame.Detection, error)
}

// Factory constructs a Detector from a model path. Set by an
// implementation's init() func, the way database/sql drivers register
// themselves; nil until a real detector backend is linked in.
var Factory func(modelPath string) (Detector, error)

// Open constructs the registered Detector backend. It returns an error if
// no backend has been linked in via Factory.
func Open(modelPath string) (Detector, error) {
	if Factory == nil {
		return nil, fmt.Errorf("detect: no detector backend registered; link one in via detect.Factory")
	}
	return Factory(modelPath)
}
