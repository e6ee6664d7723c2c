package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// bucketAPI is the subset of *minio.Client used by the s3 collector.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	GetBucketLocation(ctx context.Context, bucket string) (string, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetBucketVersioning(ctx context.Context, bucket string) (minio.BucketVersioningConfiguration, error)
}

type bucketTarget struct {
	cfg    config.S3Bucket
	client bucketAPI
	err    error
}

// S3 checks bucket reachability and permissions.
type S3 struct {
	buckets []bucketTarget
	logger  *slog.Logger
}

// NewS3 returns the s3 collector. Credentials come from the AWS or MinIO
// environment variables, the shared credentials file, or instance metadata.
func NewS3(buckets []config.S3Bucket, logger *slog.Logger) *S3 {
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
	targets := make([]bucketTarget, len(buckets))
	for i, b := range buckets {
		c, err := minio.New(b.Endpoint, &minio.Options{
			Creds:  creds,
			Secure: !b.Insecure,
			Region: b.Region,
		})
		targets[i] = bucketTarget{cfg: b, client: c, err: err}
	}
	return &S3{buckets: targets, logger: logger}
}

// Name implements Collector.
func (s *S3) Name() string { return NameS3 }

// Collect implements Collector.
func (s *S3) Collect(ctx context.Context) ([]types.Observation, error) {
	s.logger.Info("collector: checking s3 buckets", "count", len(s.buckets))
	return fanOut(ctx, s.buckets, s.check), nil
}

func (s *S3) check(ctx context.Context, t bucketTarget) types.Observation {
	name := t.cfg.Bucket
	base := types.Metrics{{Key: "bucket", Value: name}, {Key: "region", Value: t.cfg.Region}}
	if t.err != nil {
		return types.Failed(NameS3, name, types.SeverityRed, base, "Check failed: "+t.err.Error(), t.err)
	}

	exists, err := t.client.BucketExists(ctx, name)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "AccessDenied" || minio.ToErrorResponse(err).StatusCode == http.StatusForbidden {
			return types.Failed(NameS3, name, types.SeverityRed, base, "Access denied", err)
		}
		if code != "" {
			return types.Failed(NameS3, name, types.SeverityRed, base, "S3 error: "+code, err)
		}
		return types.Failed(NameS3, name, types.SeverityRed, base, "Check failed: "+err.Error(), err)
	}
	if !exists {
		return types.Failed(NameS3, name, types.SeverityRed, base, "Bucket not found",
			fmt.Errorf("bucket %s does not exist", name))
	}

	region, err := t.client.GetBucketLocation(ctx, name)
	if err != nil || region == "" {
		if err != nil {
			s.logger.Warn("collector: bucket location lookup failed", "target", name, "err", err)
		}
		region = t.cfg.Region
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var hasObjects bool
	for obj := range t.client.ListObjects(listCtx, name, minio.ListObjectsOptions{MaxKeys: 1}) {
		if obj.Err != nil {
			if minio.ToErrorResponse(obj.Err).Code == "AccessDenied" {
				return types.NewObservation(NameS3, name, types.SeverityYellow, types.Metrics{
					{Key: "bucket", Value: name},
					{Key: "region", Value: region},
					{Key: "accessible", Value: true},
					{Key: "listable", Value: false},
				}, "Bucket accessible but not listable")
			}
			return types.Failed(NameS3, name, types.SeverityRed, base, "List failed: "+obj.Err.Error(), obj.Err)
		}
		hasObjects = true
		break
	}

	versioning := "Disabled"
	if v, err := t.client.GetBucketVersioning(ctx, name); err != nil {
		versioning = "Unknown"
	} else if v.Status != "" {
		versioning = v.Status
	}

	return types.NewObservation(NameS3, name, types.SeverityGreen, types.Metrics{
		{Key: "bucket", Value: name},
		{Key: "region", Value: region},
		{Key: "accessible", Value: true},
		{Key: "listable", Value: true},
		{Key: "has_objects", Value: hasObjects},
		{Key: "versioning", Value: versioning},
	}, fmt.Sprintf("Bucket accessible (versioning: %s)", versioning))
}
