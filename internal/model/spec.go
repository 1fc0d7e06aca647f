package model

import "fmt"

// ImageSpec is an ordered list of transformation steps.
// Order matters: each step operates on the output of the previous one.
// An empty spec is the identity transform.
type ImageSpec struct {
	Steps []Step
}

// NewImageSpec creates an ImageSpec from the given steps.
func NewImageSpec(steps ...Step) ImageSpec {
	return ImageSpec{Steps: steps}
}

// Step is a single transformation. The set of implementations is closed:
// Resize, Crop, FlipV, FlipH, Contrast, Filter, Watermark, Blur and Grayscale.
type Step interface {
	// Name returns the short step name used in logs.
	Name() string

	isStep()
}

// SampleFilter selects the resampling kernel used by Resize.
type SampleFilter int32

const (
	SampleFilterUndefined SampleFilter = iota
	SampleFilterNearest
	SampleFilterTriangle
	SampleFilterCatmullRom
	SampleFilterGaussian
	SampleFilterLanczos3
)

var sampleFilterNames = map[SampleFilter]string{
	SampleFilterUndefined:  "undefined",
	SampleFilterNearest:    "nearest",
	SampleFilterTriangle:   "triangle",
	SampleFilterCatmullRom: "catmull_rom",
	SampleFilterGaussian:   "gaussian",
	SampleFilterLanczos3:   "lanczos3",
}

// Valid reports whether f is a known sampling kernel.
func (f SampleFilter) Valid() bool {
	_, ok := sampleFilterNames[f]
	return ok
}

func (f SampleFilter) String() string {
	if name, ok := sampleFilterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("sample_filter(%d)", int32(f))
}

// FilterKind names a stylistic color preset applied by the Filter step.
type FilterKind int32

const (
	FilterUnspecified FilterKind = iota
	FilterOceanic
	FilterIslands
	FilterMarine
)

var filterKindNames = map[FilterKind]string{
	FilterUnspecified: "unspecified",
	FilterOceanic:     "oceanic",
	FilterIslands:     "islands",
	FilterMarine:      "marine",
}

// Valid reports whether k is a known preset.
func (k FilterKind) Valid() bool {
	_, ok := filterKindNames[k]
	return ok
}

func (k FilterKind) String() string {
	if name, ok := filterKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int32(k))
}

// Resize scales the image to exactly Width x Height. Aspect ratio is not preserved.
type Resize struct {
	Width  uint32
	Height uint32
	Filter SampleFilter
}

// Crop extracts the Width x Height rectangle whose top-left corner is (X, Y).
type Crop struct {
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}

// FlipV flips the image vertically.
type FlipV struct{}

// FlipH flips the image horizontally.
type FlipH struct{}

// Contrast changes the contrast by Amount percent, in range [-100, 100].
type Contrast struct {
	Amount float32
}

// Filter applies a named color preset.
type Filter struct {
	Kind FilterKind
}

// Watermark composites the overlay image with its top-left corner at (X, Y).
type Watermark struct {
	X uint32
	Y uint32
}

// Blur applies a gaussian blur with the given radius.
type Blur struct {
	Sigma float32
}

// Grayscale converts the image to shades of gray.
type Grayscale struct{}

func (Resize) Name() string    { return "resize" }
func (Crop) Name() string      { return "crop" }
func (FlipV) Name() string     { return "flipv" }
func (FlipH) Name() string     { return "fliph" }
func (Contrast) Name() string  { return "contrast" }
func (Filter) Name() string    { return "filter" }
func (Watermark) Name() string { return "watermark" }
func (Blur) Name() string      { return "blur" }
func (Grayscale) Name() string { return "grayscale" }

func (Resize) isStep()    {}
func (Crop) isStep()      {}
func (FlipV) isStep()     {}
func (FlipH) isStep()     {}
func (Contrast) isStep()  {}
func (Filter) isStep()    {}
func (Watermark) isStep() {}
func (Blur) isStep()      {}
func (Grayscale) isStep() {}
