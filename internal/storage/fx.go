package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/insightsync/internal/config"
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

// New builds the Store selected by STORAGE_MODE, wrapped with compression
// when STORAGE_COMPRESSION=snappy.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	storageCfg := cfg.Storage

	var (
		store Store
		err   error
	)
	switch storageCfg.Mode {
	case config.StorageModeLocal, "":
		store = NewLocalStore(afero.NewOsFs(), storageCfg.LocalRoot)
	case config.StorageModeR2, config.StorageModeS3:
		store, err = newBucketStore(context.Background(), storageCfg)
	default:
		err = fmt.Errorf("unsupported storage mode %q", storageCfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	if storageCfg.Compression == config.CompressionSnappy {
		store = NewSnappyStore(store)
	}

	if log != nil {
		log.Info("storage initialized",
			zap.String("mode", storageCfg.Mode),
			zap.String("bucket", storageCfg.Bucket),
			zap.String("compression", storageCfg.Compression),
		)
	}
	return store, nil
}

func newBucketStore(ctx context.Context, storageCfg config.StorageConfig) (*S3Store, error) {
	if storageCfg.Bucket == "" {
		return nil, errors.New("STORAGE_BUCKET is required for bucket storage")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(storageCfg.Region),
	}
	if storageCfg.AccessKey != "" && storageCfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storageCfg.AccessKey, storageCfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storageCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storageCfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, storageCfg.Bucket, ""), nil
}
