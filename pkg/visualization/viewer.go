package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/report"
)

// Viewer renders normalized detector results as 16-bit grayscale maps.
// Values are log-scaled over the whole tensor so that every slice of a
// sequence shares one scale; empty and negative cells render black.
type Viewer struct {
	// result holds the rank-2 or rank-3 real tensor
	result *report.Result

	// log10 of the smallest positive and the largest value
	logMin float64
	logMax float64

	// scale > 0 enlarges saved maps and adds a caption
	scale int
}

// NewViewer creates a viewer for a rank-2 or rank-3 real result.
func NewViewer(res *report.Result) (*Viewer, error) {
	if res.IsComplex() {
		return nil, fmt.Errorf("%s: cannot render a complex result", res.Name)
	}
	if res.Rank() != 2 && res.Rank() != 3 {
		return nil, fmt.Errorf("%s: cannot render a rank-%d result", res.Name, res.Rank())
	}
	v := &Viewer{result: res}

	lo := math.Inf(1)
	for _, x := range res.Mean {
		if x > 0 && x < lo {
			lo = x
		}
	}
	if !math.IsInf(lo, 1) {
		v.logMin = math.Log10(lo)
		v.logMax = math.Log10(floats.Max(res.Mean))
	}
	return v, nil
}

// gray maps one value onto the viewer's log scale.
func (v *Viewer) gray(x float64) color.Gray16 {
	if !(x > 0) {
		return color.Gray16{}
	}
	span := v.logMax - v.logMin
	if span == 0 {
		return color.Gray16{Y: 65535}
	}
	s := (math.Log10(x) - v.logMin) / span
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, s*65535)))}
}

// Image renders a rank-2 result with the first axis along rows.
func (v *Viewer) Image() (image.Image, error) {
	if v.result.Rank() != 2 {
		return nil, fmt.Errorf("%s: Image needs a rank-2 result", v.result.Name)
	}
	rows, cols := v.result.Shape[0], v.result.Shape[1]
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, v.gray(v.result.Mean[y*cols+x]))
		}
	}
	return img, nil
}

// ExtractSlice renders the rank-3 plane at position along axis. The first
// remaining axis runs along rows, the second along columns.
func (v *Viewer) ExtractSlice(axis, position int) (image.Image, error) {
	if v.result.Rank() != 3 {
		return nil, fmt.Errorf("%s: ExtractSlice needs a rank-3 result", v.result.Name)
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis: %d (must be 0, 1, or 2)", axis)
	}
	shape := v.result.Shape
	if position < 0 || position >= shape[axis] {
		return nil, fmt.Errorf("position %d outside [0,%d) on axis %d", position, shape[axis], axis)
	}

	var rowAxis, colAxis int
	switch axis {
	case 0:
		rowAxis, colAxis = 1, 2
	case 1:
		rowAxis, colAxis = 0, 2
	case 2:
		rowAxis, colAxis = 0, 1
	}
	strides := []int{shape[1] * shape[2], shape[2], 1}

	img := image.NewGray16(image.Rect(0, 0, shape[colAxis], shape[rowAxis]))
	for y := 0; y < shape[rowAxis]; y++ {
		for x := 0; x < shape[colAxis]; x++ {
			idx := position*strides[axis] + y*strides[rowAxis] + x*strides[colAxis]
			img.SetGray16(x, y, v.gray(v.result.Mean[idx]))
		}
	}
	return img, nil
}

// SetScale makes saved maps scale times larger, with a caption naming the
// result and slice. Zero turns it off.
func (v *Viewer) SetScale(scale int) {
	v.scale = scale
}

func (v *Viewer) caption(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if stem == v.result.Name {
		return stem
	}
	return v.result.Name + " " + stem
}

// SaveSlice saves an image as PNG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if v.scale > 0 {
		img = Annotate(img, v.caption(filename), v.scale)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// Save writes the result to outputDir: one image for a rank-2 result, one
// image per position along the last axis for a rank-3 result.
func (v *Viewer) Save(outputDir string) ([]string, error) {
	if v.result.Rank() == 2 {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, err
		}
		img, err := v.Image()
		if err != nil {
			return nil, err
		}
		filename := filepath.Join(outputDir, v.result.Name+".png")
		if err := v.SaveSlice(img, filename); err != nil {
			return nil, err
		}
		return []string{filename}, nil
	}
	return v.SaveSliceSequence(2, filepath.Join(outputDir, v.result.Name))
}

// SaveSliceSequence extracts and saves every slice along axis.
func (v *Viewer) SaveSliceSequence(axis int, outputDir string) ([]string, error) {
	if v.result.Rank() != 3 {
		return nil, fmt.Errorf("%s: slice sequences need a rank-3 result", v.result.Name)
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis: %d (must be 0, 1, or 2)", axis)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var names []string
	for pos := 0; pos < v.result.Shape[axis]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return nil, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%d_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return nil, err
		}
		names = append(names, filename)
	}

	return names, nil
}
