package pcd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// xyzWidth is the number of leading record bytes holding x, y and z.
	xyzWidth = 3 * 4
	// maxPrealloc bounds the capacity reserved from the POINTS header.
	maxPrealloc = 1 << 20
	// maxPointStep bounds the record stride declared by SIZE and COUNT.
	maxPointStep = 64 << 10
)

var requiredHeaders = []string{"WIDTH", "HEIGHT", "POINTS", "TYPE", "SIZE", "COUNT"}

type Pcd struct {
	Header Header
	PointCloud
}

// Decoder reads PCD files. The zero value is usable.
type Decoder struct {
	Logger *zap.Logger
	// Strict rejects binary_compressed payloads with ErrUnsupportedEncoding
	// instead of reading them as raw binary records.
	Strict bool
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{Logger: logger}
}

// Decode reads the PCD file at path using a default Decoder.
func Decode(path string) (*Pcd, error) {
	return (&Decoder{}).Decode(path)
}

// DecodePcd reads a PCD stream using a default Decoder.
func DecodePcd(r io.Reader) (*Pcd, error) {
	return (&Decoder{}).DecodeReader(r)
}

func (d *Decoder) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Decode opens path and decodes it. The file is closed before returning.
func (d *Decoder) Decode(path string) (*Pcd, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	pcd, err := d.DecodeReader(f)
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
		}
		return nil, err
	}
	d.logger().Debug("Decoded point cloud",
		zap.String("path", path),
		zap.Stringer("data", pcd.Header.Data),
		zap.Int("declared", pcd.Header.Points),
		zap.Int("points", pcd.Len()))
	return pcd, nil
}

// DecodeReader decodes a PCD stream. Truncated payloads are not an error;
// decoding stops at the end of the data.
func (d *Decoder) DecodeReader(r io.Reader) (pcd *Pcd, err error) {
	bio := bufio.NewReader(r)
	h, lines, err := readHeader(bio)
	if err != nil {
		return nil, err
	}

	if h.Compressed() {
		if d.Strict {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, h.RawData)
		}
		d.logger().Warn("binary_compressed payload is read as raw binary; coordinates will be wrong",
			zap.String("data", h.RawData))
	}

	pcd = &Pcd{
		Header: h,
		PointCloud: PointCloud{
			Points: make([]Point, 0, preallocFor(h.Points)),
		},
	}
	switch h.Data {
	case EncodingASCII:
		err = pcd.LoadAsciiPoints(bio, lines)
	default:
		err = pcd.LoadBinPoints(bio)
	}
	if err != nil {
		return nil, err
	}
	return pcd, nil
}

// ReadHeader consumes the header up to and including the DATA line.
func ReadHeader(r *bufio.Reader) (Header, error) {
	h, _, err := readHeader(r)
	return h, err
}

func readHeader(r *bufio.Reader) (Header, int, error) {
	var (
		headers = map[string][]string{}
		lineNo  int
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Header{}, lineNo, &IOError{Err: err}
		}
		if len(line) > 0 {
			lineNo++
		}
		h := strings.Fields(line)
		if len(h) > 0 {
			switch h[0] {
			case "DATA":
				if len(h) < 2 {
					return Header{}, lineNo, formatErr("DATA", lineNo, "missing data encoding")
				}
				hdr, herr := buildHeader(headers, h[1])
				return hdr, lineNo, herr
			case "WIDTH", "HEIGHT", "POINTS", "TYPE", "SIZE", "COUNT", "FIELDS":
				headers[h[0]] = h[1:]
			}
		}
		if err == io.EOF {
			return Header{}, lineNo, formatErr("DATA", 0, "missing required header")
		}
	}
}

func buildHeader(headers map[string][]string, data string) (Header, error) {
	for _, key := range requiredHeaders {
		if _, ok := headers[key]; !ok {
			return Header{}, formatErr(key, 0, "missing required header")
		}
	}

	h := Header{Data: parseEncoding(data), RawData: data}
	var err error
	if h.Width, err = getIntHeader(headers, "WIDTH"); err != nil {
		return Header{}, err
	}
	if h.Height, err = getIntHeader(headers, "HEIGHT"); err != nil {
		return Header{}, err
	}
	if h.Points, err = getIntHeader(headers, "POINTS"); err != nil {
		return Header{}, err
	}

	sizes, err := getIntHeaders(headers, "SIZE")
	if err != nil {
		return Header{}, err
	}
	counts, err := getIntHeaders(headers, "COUNT")
	if err != nil {
		return Header{}, err
	}
	types := headers["TYPE"]
	if len(types) != len(sizes) || len(types) != len(counts) {
		return Header{}, formatErr("TYPE", 0, "field count mismatch: TYPE=%d SIZE=%d COUNT=%d",
			len(types), len(sizes), len(counts))
	}

	// FIELDS is optional; names are only kept when they line up with TYPE.
	names := headers["FIELDS"]
	if len(names) != len(types) {
		names = nil
	}

	h.Fields = make([]Field, len(types))
	var step int
	for i, t := range types {
		kind, err := parseFieldKind(t)
		if err != nil {
			return Header{}, formatErr("TYPE", 0, "%v", err)
		}
		// checked by division so size*count cannot overflow
		if counts[i] > 0 && sizes[i] > (maxPointStep-step)/counts[i] {
			return Header{}, formatErr("SIZE", 0, "record stride exceeds %d bytes", maxPointStep)
		}
		step += sizes[i] * counts[i]
		h.Fields[i] = Field{Size: sizes[i], Count: counts[i], Kind: kind}
		if names != nil {
			h.Fields[i].Name = names[i]
		}
	}
	return h, nil
}

// LoadBinPoints reads up to Header.Points fixed-stride records. The first
// 12 bytes of each record are x, y and z as little-endian float32; the rest
// of the stride is skipped.
func (pcd *Pcd) LoadBinPoints(r io.Reader) error {
	step := pcd.Header.PointStep()
	if step < xyzWidth {
		return formatErr("SIZE", 0, "record stride %d is smaller than xyz (%d bytes)", step, xyzWidth)
	}

	bs := make([]byte, step)
	for i := 0; i < pcd.Header.Points; i++ {
		if _, err := io.ReadFull(r, bs); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return &IOError{Err: err}
		}
		pcd.AddPoint(Point{
			X: math.Float32frombits(binary.LittleEndian.Uint32(bs[0:4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(bs[4:8])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(bs[8:12])),
		})
	}
	return nil
}

// LoadAsciiPoints reads one point per line. Lines with fewer than three
// tokens are skipped. line is the number of lines consumed so far and is
// only used in error messages.
func (pcd *Pcd) LoadAsciiPoints(r *bufio.Reader, line int) error {
	for {
		s, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return &IOError{Err: err}
		}
		if len(s) > 0 {
			line++
			pt, ok, perr := asciiGetPoint(s)
			if perr != nil {
				return formatErr("", line, "%v", perr)
			}
			if ok {
				pcd.AddPoint(pt)
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

func asciiGetPoint(line string) (Point, bool, error) {
	vals := strings.Fields(line)
	if len(vals) < 3 {
		return Point{}, false, nil
	}
	var xyz [3]float32
	for i := range xyz {
		v, err := strconv.ParseFloat(vals[i], 32)
		if err != nil {
			return Point{}, false, fmt.Errorf("invalid coordinate %q", vals[i])
		}
		xyz[i] = float32(v)
	}
	return Point{X: xyz[0], Y: xyz[1], Z: xyz[2]}, true, nil
}

// Encode writes the cloud as a binary PCD with x, y and z float fields.
func (pcd *Pcd) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("# .PCD v0.7 - Point Cloud Data file format\n")
	bw.WriteString("VERSION 0.7\n")
	bw.WriteString("FIELDS x y z\n")
	bw.WriteString("SIZE 4 4 4\n")
	bw.WriteString("TYPE F F F\n")
	bw.WriteString("COUNT 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\n", len(pcd.Points))
	bw.WriteString("HEIGHT 1\n")
	bw.WriteString("VIEWPOINT 0 0 0 1 0 0 0\n")
	fmt.Fprintf(bw, "POINTS %d\n", len(pcd.Points))
	bw.WriteString("DATA binary\n")

	var rec [xyzWidth]byte
	for _, p := range pcd.Points {
		binary.LittleEndian.PutUint32(rec[0:4], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(rec[4:8], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(rec[8:12], math.Float32bits(p.Z))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func getIntHeader(headers map[string][]string, field string) (int, error) {
	vals, err := getIntHeaders(headers, field)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, formatErr(field, 0, "missing value")
	}
	return vals[0], nil
}

func getIntHeaders(headers map[string][]string, field string) ([]int, error) {
	vals := []int{}
	for _, v := range headers[field] {
		vi, err := strconv.Atoi(v)
		if err != nil || vi < 0 {
			return nil, formatErr(field, 0, "invalid integer %q", v)
		}
		vals = append(vals, vi)
	}
	return vals, nil
}

func preallocFor(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}
