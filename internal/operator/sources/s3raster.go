// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geoengine/ge-backend/internal/operator"
	"github.com/geoengine/ge-backend/internal/profiler"
	"github.com/geoengine/ge-backend/pkg/qrect"
	"github.com/geoengine/ge-backend/pkg/result"
)

// S3Getter is the narrow surface s3RasterSource depends on, satisfied by
// *s3.Client. Tests substitute a fake to avoid a real network call.
type S3Getter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3ClientFromEnv loads the default AWS credential chain (environment,
// shared config, IAM role) the same way arx-os's storage backend does,
// and returns a ready-to-use S3 client for RegisterS3Raster.
func NewS3ClientFromEnv(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3_raster_source: loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

type s3Params struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type s3RasterSource struct {
	operator.Base
	bucket, key string
	client      S3Getter
}

// RegisterS3Raster adds the s3_raster_source type. client is typically
// produced by NewS3ClientFromEnv during bootstrap.
func RegisterS3Raster(reg *operator.Registry, client S3Getter) error {
	return reg.Register("s3_raster_source", operator.TypeDescriptor{
		Commutative: false,
		Factory: func(params json.RawMessage, srcs map[string][]operator.Node) (operator.Node, error) {
			var p s3Params
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("s3_raster_source: invalid params: %w", err)
			}
			if p.Bucket == "" || p.Key == "" {
				return nil, fmt.Errorf("s3_raster_source: params.bucket and params.key are required")
			}
			return &s3RasterSource{
				Base:   operator.NewBase("s3_raster_source", params, false, srcs),
				bucket: p.Bucket,
				key:    p.Key,
				client: client,
			}, nil
		},
	})
}

func (s *s3RasterSource) Produce(ctx context.Context, q qrect.QueryRectangle, prof *profiler.Profiler, eval operator.Evaluator) (result.Result, qrect.SpatioTemporalReference, error) {
	prof.StartCPU()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	prof.StopCPU()
	if err != nil {
		return nil, qrect.SpatioTemporalReference{}, &operator.ProducerError{NodeType: s.Type(), Err: fmt.Errorf("get object s3://%s/%s: %w", s.bucket, s.key, err)}
	}
	defer out.Body.Close()

	prof.StartCPU()
	data, err := io.ReadAll(out.Body)
	prof.StopCPU()
	prof.AddIOBytes(int64(len(data)))
	if err != nil {
		return nil, qrect.SpatioTemporalReference{}, &operator.ProducerError{NodeType: s.Type(), Err: fmt.Errorf("reading object body: %w", err)}
	}

	stref := qrect.SpatioTemporalReference{
		CRSID: q.CRSID,
		X1:    q.MinX(), X2: q.MaxX(),
		Y1: q.MinY(), Y2: q.MaxY(),
		T1: q.Timestamp, T2: q.Timestamp,
		TimeType: qrect.TimeTypeUnix,
	}

	width, height := q.XRes, q.YRes
	r := &result.Raster{Stref: stref, Width: width, Height: height, DataType: result.DataTypeU8, Pixels: data}
	return r, stref, nil
}
