package sink

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"pcdpublisher/pkg/stream"
)

// Field numbers of the apollo.drivers.PointCloud schema.
const (
	cloudHeader          protowire.Number = 1
	cloudFrameID         protowire.Number = 2
	cloudIsDense         protowire.Number = 3
	cloudPoint           protowire.Number = 4
	cloudMeasurementTime protowire.Number = 5
	cloudWidth           protowire.Number = 6
	cloudHeight          protowire.Number = 7

	headerTimestampSec protowire.Number = 1
	headerModuleName   protowire.Number = 2
	headerSequenceNum  protowire.Number = 3

	pointX         protowire.Number = 1
	pointY         protowire.Number = 2
	pointZ         protowire.Number = 3
	pointIntensity protowire.Number = 4
)

var errWireType = errors.New("unexpected wire type")

// Marshal encodes msg in the protobuf wire format of apollo.drivers.PointCloud.
func Marshal(msg *stream.PointCloud) []byte {
	b := make([]byte, 0, 64+len(msg.Point)*24)

	b = protowire.AppendTag(b, cloudHeader, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalHeader(nil, msg.Header))
	if msg.FrameID != "" {
		b = protowire.AppendTag(b, cloudFrameID, protowire.BytesType)
		b = protowire.AppendString(b, msg.FrameID)
	}
	b = protowire.AppendTag(b, cloudIsDense, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(msg.IsDense))

	var scratch []byte
	for _, p := range msg.Point {
		scratch = marshalPoint(scratch[:0], p)
		b = protowire.AppendTag(b, cloudPoint, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}

	b = protowire.AppendTag(b, cloudMeasurementTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(msg.MeasurementTime))
	b = protowire.AppendTag(b, cloudWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Width))
	b = protowire.AppendTag(b, cloudHeight, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Height))
	return b
}

func marshalHeader(b []byte, h stream.Header) []byte {
	b = protowire.AppendTag(b, headerTimestampSec, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(h.TimestampSec))
	b = protowire.AppendTag(b, headerModuleName, protowire.BytesType)
	b = protowire.AppendString(b, h.ModuleName)
	b = protowire.AppendTag(b, headerSequenceNum, protowire.VarintType)
	return protowire.AppendVarint(b, h.SequenceNum)
}

func marshalPoint(b []byte, p stream.PointXYZI) []byte {
	b = protowire.AppendTag(b, pointX, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.X))
	b = protowire.AppendTag(b, pointY, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.Y))
	b = protowire.AppendTag(b, pointZ, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(p.Z))
	// intensity is uint32 on the wire
	b = protowire.AppendTag(b, pointIntensity, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(p.Intensity))
}

// Unmarshal decodes a message produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*stream.PointCloud, error) {
	msg := &stream.PointCloud{Point: []stream.PointXYZI{}}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case cloudHeader:
			if typ != protowire.BytesType {
				return wireErr("header", typ)
			}
			return walk(raw, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
				switch num {
				case headerTimestampSec:
					msg.Header.TimestampSec = math.Float64frombits(v)
				case headerModuleName:
					msg.Header.ModuleName = string(raw)
				case headerSequenceNum:
					msg.Header.SequenceNum = v
				}
				return nil
			})
		case cloudFrameID:
			msg.FrameID = string(raw)
		case cloudIsDense:
			msg.IsDense = protowire.DecodeBool(v)
		case cloudPoint:
			if typ != protowire.BytesType {
				return wireErr("point", typ)
			}
			var p stream.PointXYZI
			if err := walk(raw, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
				switch num {
				case pointX:
					p.X = math.Float32frombits(uint32(v))
				case pointY:
					p.Y = math.Float32frombits(uint32(v))
				case pointZ:
					p.Z = math.Float32frombits(uint32(v))
				case pointIntensity:
					p.Intensity = float32(v)
				}
				return nil
			}); err != nil {
				return err
			}
			msg.Point = append(msg.Point, p)
		case cloudMeasurementTime:
			msg.MeasurementTime = math.Float64frombits(v)
		case cloudWidth:
			msg.Width = uint32(v)
		case cloudHeight:
			msg.Height = uint32(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// walk calls fn for every field in b. Scalar values arrive in v,
// length-delimited values in raw.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v32 uint32
			v32, n = protowire.ConsumeFixed32(b)
			v = uint64(v32)
		case protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func wireErr(field string, typ protowire.Type) error {
	return fmt.Errorf("%s: %w %d", field, errWireType, typ)
}
