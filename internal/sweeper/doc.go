// Package sweeper runs periodic cache maintenance jobs from one cooperative
// scheduler with context cancellation, rather than one goroutine per job.
package sweeper
