package collector

import (
	"context"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

type fakeBucket struct {
	exists     bool
	existsErr  error
	listErr    error
	objects    int
	versioning string
}

func (f *fakeBucket) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeBucket) GetBucketLocation(context.Context, string) (string, error) {
	return "eu-central-1", nil
}

func (f *fakeBucket) ListObjects(context.Context, string, minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, f.objects+1)
	if f.listErr != nil {
		ch <- minio.ObjectInfo{Err: f.listErr}
	}
	for i := 0; i < f.objects; i++ {
		ch <- minio.ObjectInfo{Key: "k"}
	}
	close(ch)
	return ch
}

func (f *fakeBucket) GetBucketVersioning(context.Context, string) (minio.BucketVersioningConfiguration, error) {
	return minio.BucketVersioningConfiguration{Status: f.versioning}, nil
}

func TestS3_Check(t *testing.T) {
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	tests := []struct {
		name   string
		bucket *fakeBucket
		want   types.Severity
		msg    string
	}{
		{"healthy", &fakeBucket{exists: true, objects: 1, versioning: "Enabled"},
			types.SeverityGreen, "Bucket accessible (versioning: Enabled)"},
		{"empty unversioned", &fakeBucket{exists: true},
			types.SeverityGreen, "Bucket accessible (versioning: Disabled)"},
		{"missing", &fakeBucket{}, types.SeverityRed, "Bucket not found"},
		{"denied", &fakeBucket{existsErr: denied}, types.SeverityRed, "Access denied"},
		{"not listable", &fakeBucket{exists: true, listErr: denied},
			types.SeverityYellow, "Bucket accessible but not listable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3{logger: testLogger(), buckets: []bucketTarget{{
				cfg:    config.S3Bucket{Bucket: "backups", Region: "us-east-1"},
				client: tt.bucket,
			}}}
			obs, _ := s.Collect(context.Background())
			o := obs[0]
			if o.Severity != tt.want || o.Message != tt.msg {
				t.Errorf("got %v %q, want %v %q", o.Severity, o.Message, tt.want, tt.msg)
			}
			if o.Target != "backups" {
				t.Errorf("target = %q", o.Target)
			}
		})
	}
}

func TestS3_RegionFromLocation(t *testing.T) {
	s := &S3{logger: testLogger(), buckets: []bucketTarget{{
		cfg:    config.S3Bucket{Bucket: "logs", Region: "us-east-1"},
		client: &fakeBucket{exists: true},
	}}}
	obs, _ := s.Collect(context.Background())
	if r, _ := obs[0].Metrics.Get("region"); r != "eu-central-1" {
		t.Errorf("region = %v", r)
	}
}
