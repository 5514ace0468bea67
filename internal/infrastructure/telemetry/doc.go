// Package telemetry samples host CPU and memory usage from procfs for the
// status snapshot and the host gauges.
package telemetry
