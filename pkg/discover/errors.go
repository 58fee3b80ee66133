package discover

import "fmt"

// ConfigurationError reports a malformed discovery query. It is returned
// before any upstream call is made.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// AggregationError reports the region whose fetch aborted a fan-out.
type AggregationError struct {
	Region string
	Err    error
}

func (e *AggregationError) Error() string {
	region := e.Region
	if region == "" {
		region = "default"
	}
	return fmt.Sprintf("region %s: %v", region, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
