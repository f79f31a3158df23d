package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/viant/revflow/model"
)

// Uploader is the subset of manager.Uploader the archive needs
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config configures the S3 archive
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// S3 archives each transition as an object under
//
//	<prefix>/audit/YYYY/MM/DD/<sessionID>-<unixNano>-<toStatus>.json
type S3 struct {
	bucket   string
	prefix   string
	uploader Uploader
}

// NewS3 resolves AWS credentials from the environment.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket required")
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewS3WithUploader(cfg, manager.NewUploader(s3.NewFromConfig(awsCfg))), nil
}

func NewS3WithUploader(cfg S3Config, uploader Uploader) *S3 {
	return &S3{bucket: cfg.Bucket, prefix: cfg.Prefix, uploader: uploader}
}

// ObjectKey returns the archive key of a transition.
func (s *S3) ObjectKey(transition *model.Transition) string {
	year, month, day := transition.Timestamp.UTC().Date()
	return path.Join(s.prefix, "audit",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s-%d-%s.json", transition.SessionID, transition.Timestamp.UnixNano(), transition.ToStatus),
	)
}

func (s *S3) Record(ctx context.Context, transitions ...*model.Transition) error {
	for _, transition := range transitions {
		data, err := json.Marshal(transition)
		if err != nil {
			return fmt.Errorf("s3: marshal transition: %w", err)
		}
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(s.bucket),
			Key:                  aws.String(s.ObjectKey(transition)),
			Body:                 bytes.NewReader(data),
			ContentType:          aws.String("application/json"),
			ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		})
		if err != nil {
			return fmt.Errorf("s3: upload %s: %w", s.ObjectKey(transition), err)
		}
	}
	return nil
}
