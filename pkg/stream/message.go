package stream

import (
	"time"

	"pcdpublisher/pkg/pcd"
)

// Header is the common message header carried by every published cloud.
type Header struct {
	TimestampSec float64
	SequenceNum  uint64
	ModuleName   string
}

type PointXYZI struct {
	X, Y, Z   float32
	Intensity float32
}

// PointCloud is the message handed to a Writer on every tick.
type PointCloud struct {
	Header          Header
	FrameID         string
	MeasurementTime float64
	Width           uint32
	Height          uint32
	IsDense         bool
	Point           []PointXYZI
}

// BuildMessage packages points into a message stamped with now and seq.
func (c Config) BuildMessage(points []pcd.Point, seq uint64, now time.Time) *PointCloud {
	ts := toSec(now)
	msg := &PointCloud{
		Header: Header{
			TimestampSec: ts,
			SequenceNum:  seq,
			ModuleName:   c.ModuleName,
		},
		FrameID:         c.FrameID,
		MeasurementTime: ts,
		Width:           uint32(len(points)),
		Height:          1,
		IsDense:         true,
		Point:           make([]PointXYZI, 0, len(points)),
	}
	for _, p := range points {
		msg.Point = append(msg.Point, PointXYZI{X: p.X, Y: p.Y, Z: p.Z, Intensity: c.Intensity})
	}
	return msg
}

func toSec(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
