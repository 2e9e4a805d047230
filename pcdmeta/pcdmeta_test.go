package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcdpublisher/pkg/pcd"
)

func TestCal(t *testing.T) {
	in := strings.NewReader(`{"PCDFile": "../pkg/pcd/testdata/two_points.pcd"}
{"PCDFile": "../pkg/pcd/testdata/empty.pcd"}
{"PCDFile": "../pkg/pcd/testdata/missing.pcd"}
`)
	var out bytes.Buffer
	require.NoError(t, Cal(in, &out))

	dec := json.NewDecoder(&out)
	var res Result

	require.NoError(t, dec.Decode(&res))
	assert.Empty(t, res.Error)
	assert.Equal(t, "ascii", res.Data)
	assert.Equal(t, 2, res.Decoded)
	assert.Equal(t, 12, res.PointStep)
	require.Len(t, res.Fields, 3)
	assert.Equal(t, Field{Name: "z", Type: "F", Size: 4, Count: 1, Offset: 8}, res.Fields[2])
	assert.Equal(t, &pcd.Point{X: 1, Y: 2, Z: 3}, res.Min)
	assert.Equal(t, &pcd.Point{X: 4, Y: 5, Z: 6}, res.Max)

	res = Result{}
	require.NoError(t, dec.Decode(&res))
	assert.Equal(t, 0, res.Decoded)
	assert.Nil(t, res.Min)
	assert.Len(t, res.Fields, 4)

	res = Result{}
	require.NoError(t, dec.Decode(&res))
	assert.Contains(t, res.Error, "missing.pcd")
}
