package storage

import "fmt"

// Reason classifies why the blob store could not be configured
type Reason string

const (
	ReasonMissingBucket Reason = "missing_bucket"
	ReasonForbidden     Reason = "forbidden"
	ReasonNotFound      Reason = "not_found"
	ReasonUnavailable   Reason = "unavailable"
)

// ConfigError is returned when the bucket is unset or its reachability
// probe fails
type ConfigError struct {
	Reason Reason
	Bucket string
	Err    error
}

func (e *ConfigError) Error() string {
	switch e.Reason {
	case ReasonMissingBucket:
		return "storage bucket is required"
	case ReasonForbidden:
		return fmt.Sprintf("no permission to access bucket: %s", e.Bucket)
	case ReasonNotFound:
		return fmt.Sprintf("bucket does not exist: %s", e.Bucket)
	}
	return fmt.Sprintf("failed to initialize storage client: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
