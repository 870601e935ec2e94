// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sources registers the concrete leaf producers: synthetic_source
// (zero external dependencies, used by tests and the at-most-one
// concurrency scenario) and s3_raster_source (fetches a raw object from S3
// via aws-sdk-go-v2, demonstrating the "file/DB source readers are opaque
// producers" contract with one real, wireable example).
package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

type syntheticParams struct {
	Value float64 `json:"value"`
}

type syntheticSource struct {
	operator.Base
	value float64
}

// RegisterSynthetic adds the synthetic_source type, a leaf producer with
// no external dependencies that fills a raster of the query's requested
// resolution with a single constant value.
func RegisterSynthetic(reg *operator.Registry) error {
	return reg.Register("synthetic_source", operator.TypeDescriptor{
		Commutative: false,
		Factory: func(params json.RawMessage, srcs map[string][]operator.Node) (operator.Node, error) {
			var p syntheticParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, fmt.Errorf("synthetic_source: invalid params: %w", err)
				}
			}
			return &syntheticSource{
				Base:  operator.NewBase("synthetic_source", params, false, srcs),
				value: p.Value,
			}, nil
		},
	})
}

func (s *syntheticSource) Produce(ctx context.Context, q qrect.QueryRectangle, prof *profiler.Profiler, eval operator.Evaluator) (result.Result, qrect.SpatioTemporalReference, error) {
	prof.StartCPU()
	defer prof.StopCPU()

	width, height := q.XRes, q.YRes
	if width == 0 {
		width = 1
	}
	if height == 0 {
		height = 1
	}

	pixels := make([]byte, int(width)*int(height))
	fill := byte(s.value)
	for i := range pixels {
		pixels[i] = fill
	}

	stref := qrect.SpatioTemporalReference{
		CRSID:    q.CRSID,
		X1:       q.MinX(), X2: q.MaxX(),
		Y1: q.MinY(), Y2: q.MaxY(),
		T1: q.Timestamp, T2: q.Timestamp,
		TimeType: qrect.TimeTypeUnix,
	}

	r := &result.Raster{Stref: stref, Width: width, Height: height, DataType: result.DataTypeU8, Pixels: pixels}
	return r, stref, nil
}
