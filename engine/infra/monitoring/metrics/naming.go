package metrics

import "strings"

const namespace = "briefcase"

// MetricName prefixes name with the application namespace unless already present.
func MetricName(name string) string {
	if strings.HasPrefix(name, namespace+"_") {
		return name
	}
	return namespace + "_" + name
}

// MetricNameWithSubsystem builds namespace_subsystem_name.
func MetricNameWithSubsystem(subsystem, name string) string {
	subsystem = strings.Trim(subsystem, "_")
	if subsystem == "" {
		return MetricName(name)
	}
	if name == "" {
		return MetricName(subsystem)
	}
	return MetricName(subsystem + "_" + name)
}

// ReconnectDelayBuckets covers the stream backoff schedule in seconds.
var ReconnectDelayBuckets = []float64{1, 2, 4, 8, 16, 30}

// PollDurationBuckets covers poll round-trip latency in seconds.
var PollDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
