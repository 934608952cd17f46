package backend

import (
	"context"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	config "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// NewAWSConfig loads the AWS configuration for s3:// replica targets from the
// default credential chain, overriding the region, endpoint and static
// credentials when provided. Pass the result through WithAWSConfig.
func NewAWSConfig(ctx context.Context, region, endpoint, accessKey, secretKey string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Without a region the credentials are set to anonymous for
	// S3-compatible services that do not require authentication
	if cfg.Region == "" {
		cfg.Region = "none"
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	// Return success
	return cfg, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// newS3Client creates the S3 client a bucket is opened over. Path-style
// addressing keeps S3-compatible services working.
func newS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}
