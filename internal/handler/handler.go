package handler

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/SyedDaiam9101/leafscan/internal/api"
	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/logging"
)

// Handler implements the api.DetectionServer interface.
type Handler struct {
	detector *detector.Detector
}

// New creates a new Handler backed by d.
func New(d *detector.Detector) *Handler {
	return &Handler{detector: d}
}

// Detect classifies the encoded image in req and returns its class index.
func (h *Handler) Detect(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)

	if req == nil || len(req.GetValue()) == 0 {
		return nil, invalidArgumentError("image cannot be empty")
	}
	if h.detector == nil {
		return nil, failedPreconditionError("detector not initialized")
	}

	res, err := h.detector.DetectBytes(ctx, req.GetValue())
	if err != nil {
		logger.Error().Err(err).Int("bytes", len(req.GetValue())).Msg("Detection failed")
		return nil, grpcError(err)
	}

	logger.Info().
		Int("class", res.ClassIndex).
		Bool("cached", res.Cached).
		Int("bytes", len(req.GetValue())).
		Float64("total_ms", float64(time.Since(start).Microseconds())/1000.0).
		Msg("Detect")

	return wrapperspb.Int64(int64(res.ClassIndex)), nil
}

// Ensure Handler implements api.DetectionServer at compile time
var _ api.DetectionServer = (*Handler)(nil)
