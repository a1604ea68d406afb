package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/VirtualPhotonics/VTS-sub001/pkg/report"
)

// volume returns a rank-3 result whose value grows by a decade along the
// last axis.
func volume(nx, ny, nz int) *report.Result {
	res := &report.Result{Name: "FluenceOfRhoAndZAndTime", Shape: []int{nx, ny, nz}}
	res.Mean = make([]float64, nx*ny*nz)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			value := 1.0
			for z := 0; z < nz; z++ {
				res.Mean[x*ny*nz+y*nz+z] = value
				value *= 10
			}
		}
	}
	return res
}

// TestNewViewer verifies rank and value-kind checks
func TestNewViewer(t *testing.T) {
	if _, err := NewViewer(volume(4, 3, 2)); err != nil {
		t.Fatalf("Expected rank-3 result to be accepted: %v", err)
	}
	if _, err := NewViewer(&report.Result{Name: "RDiffuse", Mean: []float64{1}}); err == nil {
		t.Error("Expected error for a rank-0 result")
	}
	complexRes := &report.Result{Name: "ROfFxAndTime", Shape: []int{2, 2}, ComplexMean: make([]complex128, 4)}
	if _, err := NewViewer(complexRes); err == nil {
		t.Error("Expected error for a complex result")
	}
}

// TestImage verifies the log scale of a rank-2 map
func TestImage(t *testing.T) {
	res := &report.Result{Name: "ROfRhoAndTime", Shape: []int{2, 3}, Mean: []float64{1, 10, 100, 0, -1, 100}}
	viewer, err := NewViewer(res)
	if err != nil {
		t.Fatal(err)
	}
	img, err := viewer.Image()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("Expected 3x2 image, got %dx%d", b.Dx(), b.Dy())
	}
	g := img.(*image.Gray16)
	tests := []struct {
		x, y int
		want uint16
	}{
		{0, 0, 0},
		{1, 0, 32767},
		{2, 0, 65535},
		{0, 1, 0},
		{1, 1, 0},
		{2, 1, 65535},
	}
	for _, tt := range tests {
		if got := g.Gray16At(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("Pixel (%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}

	if _, err := NewViewer(&report.Result{Name: "empty", Shape: []int{1, 2}, Mean: []float64{0, 0}}); err != nil {
		t.Errorf("An empty map is still renderable: %v", err)
	}
}

// TestExtractSlice verifies plane extraction along each axis
func TestExtractSlice(t *testing.T) {
	nx, ny, nz := 4, 3, 2
	viewer, err := NewViewer(volume(nx, ny, nz))
	if err != nil {
		t.Fatal(err)
	}

	for z := 0; z < nz; z++ {
		img, err := viewer.ExtractSlice(2, z)
		if err != nil {
			t.Fatalf("Failed to extract slice %d: %v", z, err)
		}
		if b := img.Bounds(); b.Dx() != ny || b.Dy() != nx {
			t.Errorf("Expected %dx%d slice, got %dx%d", ny, nx, b.Dx(), b.Dy())
		}
		want := uint16(0)
		if z == 1 {
			want = 65535
		}
		if got := img.(*image.Gray16).Gray16At(1, 2).Y; got != want {
			t.Errorf("Slice %d: pixel %d, want %d", z, got, want)
		}
	}

	img, err := viewer.ExtractSlice(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != nz || b.Dy() != ny {
		t.Errorf("Expected %dx%d slice, got %dx%d", nz, ny, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice(3, 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice(2, nz); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
}

// TestSave verifies that maps and slice sequences are written as PNG
func TestSave(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	flat, _ := NewViewer(&report.Result{Name: "ROfXAndY", Shape: []int{2, 2}, Mean: []float64{1, 2, 3, 4}})
	files, err := flat.Save(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != filepath.Join(tempDir, "ROfXAndY.png") {
		t.Fatalf("Unexpected files %v", files)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("Saved file is not a PNG: %v", err)
	}

	viewer, _ := NewViewer(volume(3, 3, 4))
	files, err = viewer.Save(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 4 {
		t.Errorf("Expected 4 slices, got %d", len(files))
	}
	for z := 0; z < 4; z++ {
		filename := filepath.Join(tempDir, "FluenceOfRhoAndZAndTime", fmt.Sprintf("slice_2_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := viewer.SaveSliceSequence(5, tempDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestAnnotate verifies map scaling and the caption strip
func TestAnnotate(t *testing.T) {
	res := &report.Result{Name: "ROfXAndY", Shape: []int{2, 3}, Mean: []float64{1, 10, 100, 1, 10, 100}}
	viewer, err := NewViewer(res)
	if err != nil {
		t.Fatal(err)
	}
	img, err := viewer.Image()
	if err != nil {
		t.Fatal(err)
	}

	// wide enough for the map, the label is the wider of the two
	out := Annotate(img, "ROfXAndY", 40)
	if b := out.Bounds(); b.Dx() != 120 || b.Dy() != 80+captionHeight {
		t.Fatalf("Expected 120x%d image, got %dx%d", 80+captionHeight, b.Dx(), b.Dy())
	}
	// every bin is a solid block
	if r, _, _, _ := out.At(119, 79).RGBA(); r != 0xffff {
		t.Errorf("Expected the brightest bin at the bottom right, got %d", r)
	}
	if r, _, _, _ := out.At(0, 0).RGBA(); r != 0 {
		t.Errorf("Expected the dimmest bin at the top left, got %d", r)
	}

	narrow := Annotate(img, "ROfXAndY", 1)
	if b := narrow.Bounds(); b.Dx() <= 3 || b.Dy() != 2+captionHeight {
		t.Errorf("Expected the caption to widen a small map, got %dx%d", b.Dx(), b.Dy())
	}

	viewer.SetScale(4)
	files, err := viewer.Save(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	saved, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := saved.Bounds(); b.Dy() != 8+captionHeight {
		t.Errorf("Expected a scaled map with caption, got height %d", b.Dy())
	}
}
