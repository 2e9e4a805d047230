package sink

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/encoding/protowire"

	"pcdpublisher/pkg/pcd"
	"pcdpublisher/pkg/stream"
)

func sampleMessage(seq uint64, points ...pcd.Point) *stream.PointCloud {
	cfg := stream.DefaultConfig()
	return cfg.BuildMessage(points, seq, time.Unix(1700000000, 250000000))
}

func TestMarshalRoundTrip(t *testing.T) {
	testCases := []struct {
		Name string
		Msg  *stream.PointCloud
	}{
		{Name: "empty cloud", Msg: sampleMessage(0)},
		{Name: "two points", Msg: sampleMessage(1, pcd.Point{X: 1, Y: 2, Z: 3}, pcd.Point{X: 4, Y: 5, Z: 6})},
		{Name: "negative and frame id", Msg: func() *stream.PointCloud {
			m := sampleMessage(1<<40, pcd.Point{X: -0.5, Y: -1e6, Z: 3.25})
			m.FrameID = "lidar_top"
			return m
		}()},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			got, err := Unmarshal(Marshal(testCase.Msg))
			require.NoError(t, err)
			if diff := cmp.Diff(testCase.Msg, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	msg := sampleMessage(3, pcd.Point{X: 1, Y: 1, Z: 1})
	b := Marshal(msg)
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)
	b = protowire.AppendTag(b, 98, protowire.BytesType)
	b = protowire.AppendString(b, "lidar_timestamp")

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestUnmarshalTruncated(t *testing.T) {
	b := Marshal(sampleMessage(3, pcd.Point{X: 1, Y: 1, Z: 1}))
	_, err := Unmarshal(b[:len(b)-3])
	assert.Error(t, err)
}

func TestFrameWriterReader(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	var want []*stream.PointCloud
	for i := uint64(0); i < 5; i++ {
		msg := sampleMessage(i, pcd.Point{X: float32(i), Y: 1, Z: 2})
		want = append(want, msg)
		require.NoError(t, fw.Write(msg))
	}
	require.NoError(t, fw.Close())

	fr := NewFrameReader(&buf)
	for _, w := range want {
		got, err := fr.Read()
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
	_, err := fr.Read()
	assert.Equal(t, io.EOF, err)
}

func TestFrameReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).Write(sampleMessage(0, pcd.Point{X: 1})))
	raw := buf.Bytes()

	_, err := NewFrameReader(bytes.NewReader(raw[:len(raw)-1])).Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOpenTCP(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	received := make(chan *stream.PointCloud, 2)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fr := NewFrameReader(conn)
		for {
			msg, err := fr.Read()
			if err != nil {
				close(received)
				return
			}
			received <- msg
		}
	}()

	w, err := Open(Options{Kind: KindTCP, Target: lis.Addr().String(), Topic: "/test", WriteTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleMessage(0, pcd.Point{X: 1, Y: 2, Z: 3})))
	require.NoError(t, w.Write(sampleMessage(1)))
	require.NoError(t, w.Close())

	var seqs []uint64
	for msg := range received {
		seqs = append(seqs, msg.Header.SequenceNum)
	}
	assert.Equal(t, []uint64{0, 1}, seqs)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.bin")
	for _, seq := range []uint64{7, 8} {
		w, err := Open(Options{Kind: KindFile, Target: path})
		require.NoError(t, err)
		require.NoError(t, w.Write(sampleMessage(seq, pcd.Point{X: 9})))
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	fr := NewFrameReader(f)
	for _, seq := range []uint64{7, 8} {
		msg, err := fr.Read()
		require.NoError(t, err)
		assert.Equal(t, seq, msg.Header.SequenceNum)
	}
	_, err = fr.Read()
	assert.ErrorIs(t, err, io.EOF)
}

type shortWriter struct {
	bytes.Buffer
	limit  int
	closed bool
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.Len()+len(p) > w.limit {
		n := w.limit - w.Len()
		w.Buffer.Write(p[:n])
		return n, io.ErrShortWrite
	}
	return w.Buffer.Write(p)
}

func (w *shortWriter) Close() error {
	w.closed = true
	return nil
}

func TestFrameWriterStopsAfterPartialFrame(t *testing.T) {
	w := &shortWriter{limit: 64}
	fw := NewFrameWriter(w)

	require.Error(t, fw.Write(sampleMessage(0, make([]pcd.Point, 16)...)))
	assert.True(t, w.closed)
	written := w.Len()

	err := fw.Write(sampleMessage(1))
	assert.ErrorIs(t, err, ErrBrokenStream)
	assert.Equal(t, written, w.Len())
	assert.NoError(t, fw.Close())
}

func TestDialTCPReconnectsAfterTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	received := make(chan *stream.PointCloud, 1)
	go func() {
		// the first subscriber never reads
		stalled, err := lis.Accept()
		if err != nil {
			return
		}
		defer stalled.Close()

		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		msg, err := NewFrameReader(conn).Read()
		if err != nil {
			close(received)
			return
		}
		received <- msg
	}()

	fw, err := DialTCP(lis.Addr().String(), 50*time.Millisecond)
	require.NoError(t, err)
	defer fw.Close()

	large := sampleMessage(0, make([]pcd.Point, 2<<20)...)
	require.Error(t, fw.Write(large))

	require.NoError(t, fw.Write(sampleMessage(1, pcd.Point{X: 1, Y: 2, Z: 3})))
	select {
	case msg, ok := <-received:
		require.True(t, ok, "frame on the new connection did not decode")
		assert.Equal(t, uint64(1), msg.Header.SequenceNum)
		assert.Len(t, msg.Point, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame on the new connection")
	}
}

func TestOpenLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w, err := Open(Options{Kind: KindLog, Topic: "/apollo/sensor/mid360/PointCloud", Logger: zap.New(core)})
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleMessage(2, pcd.Point{}, pcd.Point{})))

	entries := logs.FilterMessage("Published point cloud").All()
	require.Len(t, entries, 1)
	var topics int
	for _, f := range entries[0].Context {
		if f.Key == "topic" {
			topics++
		}
	}
	assert.Equal(t, 1, topics)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/apollo/sensor/mid360/PointCloud", fields["topic"])
	assert.Equal(t, uint64(2), fields["seq"])
	assert.Equal(t, uint32(2), fields["points"])
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(Options{Kind: "carrier-pigeon"})
	assert.Error(t, err)
}
