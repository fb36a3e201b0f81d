package delivery

import (
	"context"
	stderrors "errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

// fakeS3 satisfies manager.UploadAPIClient. Test artifacts are far below
// the multipart threshold, so only PutObject is ever reached.
type fakeS3 struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errUnexpectedMultipart
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errUnexpectedMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errUnexpectedMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errUnexpectedMultipart
}

var errUnexpectedMultipart = stderrors.New("unexpected multipart upload")

func storageConfig(bucket, prefix string) report.DeliveryConfig {
	return report.DeliveryConfig{
		Method:  report.DeliveryStorage,
		Storage: &report.StorageDeliveryConfig{Bucket: bucket, Prefix: prefix},
	}
}

func TestStorageChannel_Deliver(t *testing.T) {
	t.Run("uploads under prefix and organization", func(t *testing.T) {
		fake := &fakeS3{}
		ch := NewStorageChannelWithClient(fake, zaptest.NewLogger(t))
		req := testRequest()

		receipt, err := ch.Deliver(context.Background(), storageConfig("compliance-reports", "exports"), req)
		require.NoError(t, err)

		require.Len(t, fake.inputs, 1)
		input := fake.inputs[0]
		assert.Equal(t, "compliance-reports", *input.Bucket)
		assert.Equal(t, "exports/org-1/monthly-hipaa-20250601T083000Z.json", *input.Key)
		assert.Equal(t, "application/json", *input.ContentType)
		assert.Equal(t, "exec-1", input.Metadata["execution-id"])

		body, err := io.ReadAll(input.Body)
		require.NoError(t, err)
		assert.Equal(t, req.Artifact.Data, body)

		assert.Equal(t, "s3://compliance-reports/exports/org-1/monthly-hipaa-20250601T083000Z.json",
			receipt.Location)
	})

	t.Run("no prefix", func(t *testing.T) {
		fake := &fakeS3{}
		ch := NewStorageChannelWithClient(fake, zaptest.NewLogger(t))

		_, err := ch.Deliver(context.Background(), storageConfig("bucket", ""), testRequest())
		require.NoError(t, err)
		assert.Equal(t, "org-1/monthly-hipaa-20250601T083000Z.json", *fake.inputs[0].Key)
	})

	t.Run("upload failures are not retried by the dispatcher", func(t *testing.T) {
		fake := &fakeS3{err: assert.AnError}
		ch := NewStorageChannelWithClient(fake, zaptest.NewLogger(t))

		_, err := ch.Deliver(context.Background(), storageConfig("bucket", ""), testRequest())
		require.Error(t, err)
		assert.False(t, errors.IsRetryable(err))
	})
}
