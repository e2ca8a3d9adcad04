// Package grpc serves the standard grpc.health.v1 service. The status is
// SERVING while the worker pool reports healthy.
package grpc
