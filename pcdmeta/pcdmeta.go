package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"pcdpublisher/pkg/pcd"
)

type PCD struct {
	PCDFile string
}

type Field struct {
	Name   string
	Type   string
	Size   int
	Count  int
	Offset int
}

type Result struct {
	Error     string `json:",omitempty"`
	Data      string
	Width     int
	Height    int
	Points    int
	PointStep int
	Fields    []Field
	Decoded   int
	Min       *pcd.Point `json:",omitempty"`
	Max       *pcd.Point `json:",omitempty"`
}

// Cal answers one JSON request per PCD read from r with a JSON Result on w
// until r is exhausted.
func Cal(r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)
	for {
		var req PCD
		err := decoder.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// the stream is no longer aligned on a request boundary
			return encoder.Encode(Result{Error: err.Error()})
		}
		res, err := describe(req.PCDFile)
		if err != nil {
			res = Result{Error: err.Error()}
		}
		if err := encoder.Encode(res); err != nil {
			return err
		}
	}
}

func describe(path string) (Result, error) {
	p, err := pcd.Decode(path)
	if err != nil {
		return Result{}, err
	}
	h := p.Header
	res := Result{
		Data:      h.RawData,
		Width:     h.Width,
		Height:    h.Height,
		Points:    h.Points,
		PointStep: h.PointStep(),
		Decoded:   p.Len(),
	}
	var off int
	for _, f := range h.Fields {
		res.Fields = append(res.Fields, Field{
			Name:   f.Name,
			Type:   f.Kind.String(),
			Size:   f.Size,
			Count:  f.Count,
			Offset: off,
		})
		off += f.Width()
	}
	if min, max, ok := p.Bounds(); ok {
		res.Min, res.Max = &min, &max
	}
	return res, nil
}

func main() {
	if err := Cal(os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}
