package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"pcdpublisher/pkg/stream"
)

const (
	// maxFrameSize bounds a single frame read by FrameReader.
	maxFrameSize = 256 << 20
	dialTimeout  = 5 * time.Second
)

// ErrBrokenStream is returned by FrameWriter once a failed write may have
// left a partial frame on the underlying stream.
var ErrBrokenStream = errors.New("sink: frame stream broken by a failed write")

// FrameWriter writes varint length-delimited messages, the same framing
// protodelim uses, to an underlying stream such as a TCP connection or a
// recording file.
//
// A failed write closes the stream. Writers created with DialTCP reconnect
// on the next Write; others keep returning ErrBrokenStream.
type FrameWriter struct {
	w       io.Writer
	closer  io.Closer
	timeout time.Duration
	conn    net.Conn
	addr    string
	buf     []byte
	broken  error
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: w}
	if c, ok := w.(io.Closer); ok {
		fw.closer = c
	}
	return fw
}

// DialTCP connects to a subscriber listening at addr. Each write must
// complete within timeout; a zero timeout disables the deadline.
func DialTCP(addr string, timeout time.Duration) (*FrameWriter, error) {
	fw := &FrameWriter{addr: addr, timeout: timeout}
	if err := fw.dial(); err != nil {
		return nil, err
	}
	return fw, nil
}

func (fw *FrameWriter) dial() error {
	conn, err := net.DialTimeout("tcp", fw.addr, dialTimeout)
	if err != nil {
		return err
	}
	fw.w, fw.closer, fw.conn = conn, conn, conn
	fw.broken = nil
	return nil
}

func (fw *FrameWriter) Write(msg *stream.PointCloud) error {
	if fw.broken != nil {
		if fw.addr == "" {
			return fw.broken
		}
		if err := fw.dial(); err != nil {
			return fmt.Errorf("%w: redial %s: %v", ErrBrokenStream, fw.addr, err)
		}
	}

	payload := Marshal(msg)
	fw.buf = protowire.AppendVarint(fw.buf[:0], uint64(len(payload)))
	fw.buf = append(fw.buf, payload...)

	if fw.conn != nil && fw.timeout > 0 {
		if err := fw.conn.SetWriteDeadline(time.Now().Add(fw.timeout)); err != nil {
			fw.fail(err)
			return err
		}
	}
	if _, err := fw.w.Write(fw.buf); err != nil {
		fw.fail(err)
		return err
	}
	return nil
}

// fail drops the stream so no frame is ever appended after a partial one.
func (fw *FrameWriter) fail(err error) {
	fw.broken = fmt.Errorf("%w: %v", ErrBrokenStream, err)
	fw.Close()
}

func (fw *FrameWriter) Close() error {
	if fw.closer == nil {
		return nil
	}
	err := fw.closer.Close()
	fw.closer = nil
	return err
}

// FrameReader reads messages written by FrameWriter.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Read returns the next message, or io.EOF when the stream ends cleanly.
func (fr *FrameReader) Read() (*stream.PointCloud, error) {
	size, err := binary.ReadUvarint(fr.r)
	if err != nil {
		return nil, err
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return Unmarshal(payload)
}
