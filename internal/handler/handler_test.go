package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/SyedDaiam9101/leafscan/internal/api"
	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/imageprep"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
	"github.com/SyedDaiam9101/leafscan/internal/middleware"
)

func leafJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 140, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// startServer serves h over an in-memory listener with the production
// interceptor chain and returns a connected client.
func startServer(t *testing.T, h api.DetectionServer) *api.DetectionClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.UnaryRecoveryInterceptor(),
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	))
	api.RegisterDetectionServer(srv, h)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return api.NewDetectionClient(conn)
}

func TestDetect_ReturnsClassIndex(t *testing.T) {
	mock := inference.NewMock()
	h := New(detector.New(mock, imageprep.Default(), nil, detector.Config{}))

	resp, err := h.Detect(context.Background(), wrapperspb.Bytes(leafJPEG(t)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.GetValue())
	assert.Equal(t, 1, mock.Calls())
}

func TestDetect_EmptyImage(t *testing.T) {
	h := New(detector.New(inference.NewMock(), imageprep.Default(), nil, detector.Config{}))

	_, err := h.Detect(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.Detect(context.Background(), wrapperspb.Bytes(nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDetect_NilDetector(t *testing.T) {
	h := New(nil)
	_, err := h.Detect(context.Background(), wrapperspb.Bytes([]byte{1, 2, 3}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestDetect_NoEngine(t *testing.T) {
	h := New(detector.New(nil, imageprep.Default(), nil, detector.Config{}))
	_, err := h.Detect(context.Background(), wrapperspb.Bytes(leafJPEG(t)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestDetect_CorruptImage(t *testing.T) {
	h := New(detector.New(inference.NewMock(), imageprep.Default(), nil, detector.Config{}))
	_, err := h.Detect(context.Background(), wrapperspb.Bytes([]byte("GIF89a-but-not-really")))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDetect_InferenceFailure(t *testing.T) {
	mock := inference.NewMock()
	mock.SetError("onnx runtime exploded")
	h := New(detector.New(mock, imageprep.Default(), nil, detector.Config{}))

	_, err := h.Detect(context.Background(), wrapperspb.Bytes(leafJPEG(t)))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "onnx runtime exploded")
}

func TestGRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{detector.ErrEmptyImage, codes.InvalidArgument},
		{fmt.Errorf("wrap: %w", imageprep.ErrDecode), codes.InvalidArgument},
		{detector.ErrNoEngine, codes.FailedPrecondition},
		{inference.ErrSessionClosed, codes.FailedPrecondition},
		{fmt.Errorf("%w: got 1, expected 2", inference.ErrInputSize), codes.Internal},
		{inference.ErrEmptyOutput, codes.Internal},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("something else"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(grpcError(tt.err)), tt.err.Error())
	}
	assert.NoError(t, grpcError(nil))
}

func TestDetect_OverGRPC(t *testing.T) {
	mock := inference.NewMockWithScores([]float32{0.1, 0.1, 0.1, 0.1, 0.6})
	client := startServer(t, New(detector.New(mock, imageprep.Default(), nil, detector.Config{})))

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), middleware.RequestIDHeader, "leaf-1")
	idx, err := client.Detect(ctx, leafJPEG(t), grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, 4, idx)
	assert.Equal(t, []string{"leaf-1"}, header.Get(middleware.RequestIDHeader))

	again, err := client.Detect(context.Background(), leafJPEG(t))
	require.NoError(t, err)
	assert.Equal(t, idx, again)
}

func TestDetect_OverGRPC_InvalidImage(t *testing.T) {
	client := startServer(t, New(detector.New(inference.NewMock(), imageprep.Default(), nil, detector.Config{})))

	idx, err := client.Detect(context.Background(), []byte("not an image"))
	assert.Equal(t, -1, idx)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
