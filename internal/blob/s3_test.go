package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if len(optFns) == 0 {
			t.Fatalf("expected config options")
		}
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		if lo.Credentials == nil {
			t.Fatalf("credentials provider not applied")
		}
		return aws.Config{}, nil
	}

	var capturedBaseEndpoint string
	var capturedPathStyle bool
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint == nil {
			t.Fatalf("BaseEndpoint not set")
		}
		capturedBaseEndpoint = *opts.BaseEndpoint
		capturedPathStyle = opts.UsePathStyle
		return &s3.Client{}
	}

	store, err := NewS3Store(context.Background(), S3Config{
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "letters",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
	})
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	if store.bucket != "letters" {
		t.Fatalf("bucket not applied: %q", store.bucket)
	}
	if capturedBaseEndpoint != "http://127.0.0.1:9000" {
		t.Fatalf("base endpoint not applied: %q", capturedBaseEndpoint)
	}
	if !capturedPathStyle {
		t.Fatal("path style not enabled for custom endpoint")
	}
}

func TestNewS3Store_NoEndpointKeepsVirtualHostStyle(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint != nil {
			t.Fatalf("unexpected BaseEndpoint %q", *opts.BaseEndpoint)
		}
		if opts.UsePathStyle {
			t.Fatal("path style must stay off without a custom endpoint")
		}
		return &s3.Client{}
	}

	if _, err := NewS3Store(context.Background(), S3Config{Bucket: "letters", Region: "us-east-1"}); err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
}

func TestNewS3Store_ConfigError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}

	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected error from config load")
	}
}
