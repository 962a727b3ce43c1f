package geometry

import (
	"math"

	"roverscope/internal/telemetry"
)

// Overlay positions a detection box over a video surface as fractions of its
// size, so it scales with whatever the frame is drawn at.
type Overlay struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OverlayBox normalizes a sensor-pixel box by the sensor resolution. An
// unknown resolution falls back to telemetry.DefaultResolution. Every field is
// clamped to [0, 1].
func OverlayBox(b telemetry.Box, r telemetry.Resolution) Overlay {
	if !r.Known() {
		r = telemetry.DefaultResolution
	}
	w, h := float64(r.W), float64(r.H)
	return Overlay{
		Left:   unit(b.X1 / w),
		Top:    unit(b.Y1 / h),
		Width:  unit(b.Width() / w),
		Height: unit(b.Height() / h),
	}
}

// Pixels scales the overlay to a concrete surface.
func (o Overlay) Pixels(surfaceW, surfaceH float64) (x, y, w, h float64) {
	return o.Left * surfaceW, o.Top * surfaceH, o.Width * surfaceW, o.Height * surfaceH
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
