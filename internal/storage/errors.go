package storage

import (
	"fmt"
	"time"
)

// S3Error provides rich context for S3 backend operations.
type S3Error struct {
	Op        string    // Operation: "upload", "download"
	Bucket    string    // S3 bucket name
	Key       string    // S3 object key
	Cause     error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *S3Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("S3 %s failed for s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Cause)
	}
	return fmt.Sprintf("S3 %s failed for s3://%s/%s", e.Op, e.Bucket, e.Key)
}

func (e *S3Error) Unwrap() error {
	return e.Cause
}

// NewS3Error creates an S3 error with timestamp.
func NewS3Error(op, bucket, key string, cause error) error {
	return &S3Error{
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// HTTPError is a non-success response from a blob endpoint.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
