// Package overlay declares the contract for drawing detections onto a frame
// for the annotated-video sink. Visual styling is cosmetic and out of scope
// (spec.md §1 Non-goals); Drawer exists so the pipeline never depends on a
// concrete rendering choice, mirroring the filter.Filter interface shape in
// github.com/ausocean/av/filter.
package overlay

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ausocean/aerialtrack/internal/frame"
)

// Drawer renders detections onto img and returns the annotated frame.
// Implementations may return img itself (mutated in place) or a new Mat.
type Drawer interface {
	Draw(img gocv.Mat, detections []frame.EnrichedDetection) gocv.Mat
}

// Basic is a minimal reference Drawer: bounding boxes and class labels only.
// It exists so the repository has a runnable default, the same way
// github.com/ausocean/av/filter ships filter.NoOp as its trivial case; color
// and font choices here are cosmetic and not part of this system's contract.
type Basic struct {
	BoxColor  gocv.Scalar
	TextColor gocv.Scalar
	Thickness int
}

// NewBasic returns a Basic drawer with sensible default colors.
func NewBasic() *Basic {
	return &Basic{
		BoxColor:  gocv.NewScalar(0, 255, 0, 0),
		TextColor: gocv.NewScalar(255, 255, 255, 0),
		Thickness: 2,
	}
}

// Draw annotates img in place with a rectangle and label per detection.
func (b *Basic) Draw(img gocv.Mat, detections []frame.EnrichedDetection) gocv.Mat {
	for _, d := range detections {
		rect := image.Rect(int(d.BBox.X1), int(d.BBox.Y1), int(d.BBox.X2), int(d.BBox.Y2))
		gocv.Rectangle(&img, rect, b.BoxColor, b.Thickness)

		label := fmt.Sprintf("%s %.0f%%", d.ClassName, d.Confidence*100)
		gocv.PutText(&img, label, image.Pt(rect.Min.X, rect.Min.Y-6),
			gocv.FontHersheySimplex, 0.5, b.TextColor, 1)
	}
	return img
}
