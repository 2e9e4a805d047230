package pcd

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Point is a single decoded point. Points are never modified after decoding.
type Point struct {
	X, Y, Z float32
}

type PointCloud struct {
	Points []Point
}

func (p *PointCloud) AddPoint(pt Point) {
	p.Points = append(p.Points, pt)
}

func (p *PointCloud) Len() int {
	return len(p.Points)
}

// Bounds returns the axis-aligned bounding box of the cloud. ok is false
// for an empty cloud.
func (p *PointCloud) Bounds() (min, max Point, ok bool) {
	if len(p.Points) == 0 {
		return
	}
	min = Point{X: math.MaxFloat32, Y: math.MaxFloat32, Z: math.MaxFloat32}
	max = Point{X: -math.MaxFloat32, Y: -math.MaxFloat32, Z: -math.MaxFloat32}
	for _, pt := range p.Points {
		min.X, max.X = minf(min.X, pt.X), maxf(max.X, pt.X)
		min.Y, max.Y = minf(min.Y, pt.Y), maxf(max.Y, pt.Y)
		min.Z, max.Z = minf(min.Z, pt.Z), maxf(max.Z, pt.Z)
	}
	return min, max, true
}

// Load decodes a point cloud file, choosing the format from its extension:
// ".bin" is read as KITTI float32 records, ".pcd" as PCD. Other extensions
// fail with ErrUnsupportPointCloudFileType.
func (d *Decoder) Load(path string) (*PointCloud, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin":
		bin, err := d.DecodeBinFile(path)
		if err != nil {
			return nil, err
		}
		return &bin.PointCloud, nil
	case ".pcd":
		pcd, err := d.Decode(path)
		if err != nil {
			return nil, err
		}
		return &pcd.PointCloud, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportPointCloudFileType, path)
	}
}

// Load is Decoder.Load with a default Decoder.
func Load(path string) (*PointCloud, error) {
	return (&Decoder{}).Load(path)
}

func minf(a, b float32) float32 {
	if b < a {
		return b
	}
	return a
}

func maxf(a, b float32) float32 {
	if b > a {
		return b
	}
	return a
}
