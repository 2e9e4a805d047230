package pcd

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
)

const (
	// BinPointDataLen is the KITTI velodyne record: x, y, z, reflectance.
	BinPointDataLen = 4 * 4
)

type Bin struct {
	PointCloud
}

// DecodeBin reads KITTI-style float32 records until EOF. Reflectance is
// dropped. A trailing partial record ends decoding without error.
func DecodeBin(r io.Reader) (*Bin, error) {
	bin := &Bin{PointCloud: PointCloud{Points: []Point{}}}
	var data [BinPointDataLen]byte
	for {
		if _, err := io.ReadFull(r, data[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return bin, nil
			}
			return nil, &IOError{Err: err}
		}
		bin.AddPoint(Point{
			X: math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])),
		})
	}
}

// DecodeBinFile opens path and decodes it with DecodeBin.
func (d *Decoder) DecodeBinFile(path string) (*Bin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	bin, err := DecodeBin(f)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return nil, err
	}
	d.logger().Debug("Decoded bin point cloud", zap.String("path", path), zap.Int("points", bin.Len()))
	return bin, nil
}

func (bin *Bin) ToPcd() *Pcd {
	return &Pcd{
		Header: Header{
			Fields: []Field{
				{Name: "x", Size: 4, Count: 1, Kind: FieldFloat},
				{Name: "y", Size: 4, Count: 1, Kind: FieldFloat},
				{Name: "z", Size: 4, Count: 1, Kind: FieldFloat},
			},
			Width:   bin.Len(),
			Height:  1,
			Points:  bin.Len(),
			Data:    EncodingBinary,
			RawData: "binary",
		},
		PointCloud: bin.PointCloud,
	}
}
