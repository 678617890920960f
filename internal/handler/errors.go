package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/imageprep"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
)

// grpcError maps known internal errors to appropriate gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, detector.ErrEmptyImage):
		return status.Errorf(codes.InvalidArgument, "image cannot be empty")

	case errors.Is(err, imageprep.ErrDecode):
		return status.Errorf(codes.InvalidArgument, "unsupported or corrupt image: %v", err)

	case errors.Is(err, detector.ErrNoEngine), errors.Is(err, inference.ErrSessionClosed):
		return status.Errorf(codes.FailedPrecondition, "inference engine not initialized")

	case errors.Is(err, inference.ErrInputSize):
		return status.Errorf(codes.Internal, "model input shape mismatch: %v", err)

	case errors.Is(err, inference.ErrInference), errors.Is(err, inference.ErrEmptyOutput):
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)

	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "request canceled")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "request deadline exceeded")

	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}
