package delivery

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
)

// StorageChannel uploads report artifacts to S3-compatible object
// storage. Objects are keyed by prefix, organization, and filename so
// per-tenant retention policies can target them. Uploads go through the
// transfer manager so artifacts above the part-size threshold switch to
// multipart automatically.
type StorageChannel struct {
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewStorageChannel creates an S3 delivery channel. A non-empty
// endpoint switches to path-style addressing for MinIO/LocalStack.
func NewStorageChannel(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*StorageChannel, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.NewInternalError("failed to load AWS config").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg)
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &StorageChannel{uploader: manager.NewUploader(client), logger: logger}, nil
}

// NewStorageChannelWithClient wires an existing client. Used by tests.
func NewStorageChannelWithClient(client manager.UploadAPIClient, logger *zap.Logger) *StorageChannel {
	return &StorageChannel{uploader: manager.NewUploader(client), logger: logger}
}

func (c *StorageChannel) Method() report.DeliveryMethod {
	return report.DeliveryStorage
}

func (c *StorageChannel) Deliver(ctx context.Context, cfg report.DeliveryConfig, req *Request) (*Receipt, error) {
	sc := cfg.Storage
	key := objectKey(sc.Prefix, req.OrgID, req.Artifact.Filename)

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sc.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(req.Artifact.Data),
		ContentType: aws.String(req.Artifact.ContentType),
		Metadata: map[string]string{
			"report-name":  req.ReportName,
			"report-type":  string(req.ReportType),
			"execution-id": req.ExecutionID,
		},
	})
	if err != nil {
		// Not retried at the dispatcher layer: the SDK already retries
		// transient request failures internally, so anything surfacing
		// here is treated as permanent.
		return nil, errors.NewDeliveryError("STORAGE_UPLOAD_FAILED",
			"failed to upload report artifact", false).WithCause(err)
	}

	location := fmt.Sprintf("s3://%s/%s", sc.Bucket, key)
	c.logger.Debug("artifact stored",
		zap.String("location", location),
		zap.Int("data_size", len(req.Artifact.Data)))

	return &Receipt{Location: location, DeliveredAt: time.Now().UTC()}, nil
}

func objectKey(prefix, orgID, filename string) string {
	return path.Join(prefix, orgID, filename)
}
