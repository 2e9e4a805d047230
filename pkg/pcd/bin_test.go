package pcd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBin(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(binaryRecord(BinPointDataLen, 1, 2, 3))
	buf.Write(binaryRecord(BinPointDataLen, -4, -5, -6))
	buf.Write([]byte{1, 2, 3})

	bin, err := DecodeBin(&buf)
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2, 3}, {-4, -5, -6}}, bin.Points)
}

func TestBinToPcd(t *testing.T) {
	bin := &Bin{PointCloud: PointCloud{Points: []Point{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}}}}
	p := bin.ToPcd()
	assert.Equal(t, 3, p.Header.Width)
	assert.Equal(t, 12, p.Header.PointStep())

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	back, err := DecodePcd(&buf)
	require.NoError(t, err)
	assert.Equal(t, bin.Points, back.Points)
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(binaryRecord(BinPointDataLen, 7, 8, 9))
	binPath := writeTemp(t, "000001.BIN", raw.Bytes())

	pc, err := Load(binPath)
	require.NoError(t, err)
	assert.Equal(t, []Point{{7, 8, 9}}, pc.Points)

	pc, err = Load("testdata/two_points.pcd")
	require.NoError(t, err)
	assert.Equal(t, 2, pc.Len())

	_, err = Load(writeTemp(t, "bad.pcd", raw.Bytes()))
	assert.ErrorIs(t, err, ErrInvalidPcdFormat)

	_, err = Load(writeTemp(t, "scan.ply", raw.Bytes()))
	assert.ErrorIs(t, err, ErrUnsupportPointCloudFileType)
}
