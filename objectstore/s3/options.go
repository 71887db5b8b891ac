package s3

import (
	"os"
)

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the AWS region (e.g., "us-east-1").
	// If empty, uses AWS_REGION or AWS_DEFAULT_REGION environment variable.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services.
	// Examples:
	//   - MinIO: "http://localhost:9000"
	//   - Cloudflare R2: "https://<account_id>.r2.cloudflarestorage.com"
	// Leave empty for AWS S3.
	Endpoint string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses AWS_ACCESS_KEY_ID environment variable or IAM role.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses AWS_SECRET_ACCESS_KEY environment variable or IAM role.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing instead of virtual-hosted-style.
	// Required for some S3-compatible services like MinIO.
	UsePathStyle bool
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - BUCKETFS_S3_BUCKET or AWS_S3_BUCKET: bucket name
//   - BUCKETFS_S3_REGION or AWS_REGION or AWS_DEFAULT_REGION: region
//   - BUCKETFS_S3_ENDPOINT: custom endpoint
//   - AWS_ACCESS_KEY_ID: access key
//   - AWS_SECRET_ACCESS_KEY: secret key
//   - AWS_SESSION_TOKEN: session token
//   - BUCKETFS_S3_USE_PATH_STYLE: "true" for path-style addressing
func ConfigFromEnv() Config {
	var config Config

	// Bucket
	if v := os.Getenv("BUCKETFS_S3_BUCKET"); v != "" {
		config.Bucket = v
	} else if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		config.Bucket = v
	}

	// Region
	if v := os.Getenv("BUCKETFS_S3_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.Region = v
	}

	config.Endpoint = os.Getenv("BUCKETFS_S3_ENDPOINT")

	// Credentials from environment (AWS SDK will also pick these up)
	config.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.SessionToken = os.Getenv("AWS_SESSION_TOKEN")

	if v := os.Getenv("BUCKETFS_S3_USE_PATH_STYLE"); v == "true" || v == "1" {
		config.UsePathStyle = true
	}

	return config
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - bucket: bucket name (required)
//   - region: AWS region
//   - endpoint: custom endpoint URL
//   - access_key_id: AWS access key
//   - secret_access_key: AWS secret key
//   - session_token: session token
//   - use_path_style: "true" for path-style addressing
func ConfigFromMap(m map[string]string) Config {
	var config Config

	if v, ok := m["bucket"]; ok {
		config.Bucket = v
	}
	if v, ok := m["region"]; ok {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok && (v == "true" || v == "1") {
		config.UsePathStyle = true
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}
