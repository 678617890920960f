// Package detector predicts plant disease classes from leaf images.
package detector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/SyedDaiam9101/leafscan/internal/cache"
	"github.com/SyedDaiam9101/leafscan/internal/imageprep"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
	"github.com/SyedDaiam9101/leafscan/internal/logging"
	"github.com/SyedDaiam9101/leafscan/internal/metrics"
)

const tracerName = "github.com/SyedDaiam9101/leafscan/internal/detector"

var (
	// ErrEmptyImage is returned for zero-length image payloads.
	ErrEmptyImage = errors.New("empty image")
	// ErrNoEngine is returned when the Detector has no inference engine.
	ErrNoEngine = errors.New("inference engine not initialized")
)

// ResultCache stores predicted class indices by key. *cache.Cache satisfies it.
type ResultCache interface {
	GetClass(ctx context.Context, key string) (int, bool, error)
	SetClass(ctx context.Context, key string, classIndex int, ttl time.Duration) error
}

// Result is the outcome of one detection.
type Result struct {
	ClassIndex int
	// Digest is the hex SHA-256 of the encoded image.
	Digest string
	Cached bool
}

// Config holds the Detector's caching parameters.
type Config struct {
	// ModelVersion scopes cache keys so a model swap never serves stale classes.
	ModelVersion string
	CacheTTL     time.Duration
}

// Detector classifies images with a long-lived engine. It is safe for
// concurrent use; identical in-flight images share one forward pass.
type Detector struct {
	engine inference.Engine
	prep   imageprep.Preprocessor
	cache  ResultCache
	cfg    Config
	group  singleflight.Group
	tracer trace.Tracer
}

// New creates a Detector. rc may be nil to disable result caching.
func New(engine inference.Engine, prep imageprep.Preprocessor, rc ResultCache, cfg Config) *Detector {
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "default"
	}
	return &Detector{
		engine: engine,
		prep:   prep,
		cache:  rc,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// NumClasses reports the engine's class count, or 0 without an engine.
func (d *Detector) NumClasses() int {
	if d.engine == nil {
		return 0
	}
	return d.engine.NumClasses()
}

// DetectFile reads the image at path and classifies it.
func (d *Detector) DetectFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", imageprep.ErrNotFound, path)
		}
		return Result{}, fmt.Errorf("read image %s: %w", path, err)
	}
	return d.DetectBytes(ctx, data)
}

// DetectBytes classifies an encoded image.
func (d *Detector) DetectBytes(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}
	if d.engine == nil {
		return Result{}, ErrNoEngine
	}

	logger := logging.FromContext(ctx)
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := cache.Key(d.cfg.ModelVersion, digest)

	if d.cache != nil {
		idx, found, err := d.cache.GetClass(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCacheLookup("error")
			logger.Warn().Err(err).Str("digest", digest).Msg("Prediction cache lookup failed")
		case found && (idx < 0 || idx >= d.engine.NumClasses()):
			metrics.RecordCacheLookup("error")
			logger.Warn().Str("digest", digest).Int("class", idx).Msg("Cached class out of range, ignoring")
		case found:
			metrics.RecordCacheLookup("hit")
			metrics.RecordPrediction(idx)
			return Result{ClassIndex: idx, Digest: digest, Cached: true}, nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	// Only the call that runs classify stores the result; joined callers
	// all see shared=true.
	v, err, shared := d.group.Do(key, func() (any, error) {
		idx, err := d.classify(ctx, data)
		if err != nil {
			return -1, err
		}
		if d.cache != nil {
			if err := d.cache.SetClass(ctx, key, idx, d.cfg.CacheTTL); err != nil {
				logger.Warn().Err(err).Str("digest", digest).Msg("Prediction cache store failed")
			}
		}
		return idx, nil
	})
	if err != nil {
		return Result{}, err
	}
	idx := v.(int)

	metrics.RecordPrediction(idx)
	logger.Debug().Str("digest", digest).Int("class", idx).Bool("shared", shared).Msg("Image classified")

	return Result{ClassIndex: idx, Digest: digest}, nil
}

// classify decodes, preprocesses and runs one forward pass.
func (d *Detector) classify(ctx context.Context, data []byte) (int, error) {
	_, span := d.tracer.Start(ctx, "detector.preprocess")
	start := time.Now()
	img, format, err := imageprep.Decode(bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		span.End()
		return -1, err
	}
	input := d.prep.Tensor(img)
	metrics.RecordPreprocessLatency(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("image.format", format),
		attribute.Int("image.width", img.Bounds().Dx()),
		attribute.Int("image.height", img.Bounds().Dy()),
	)
	span.End()

	_, span = d.tracer.Start(ctx, "detector.inference")
	defer span.End()
	start = time.Now()
	idx, err := inference.Classify(d.engine, input, d.prep.Shape())
	metrics.RecordInferenceLatency(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return -1, err
	}
	span.SetAttributes(attribute.Int("prediction.class", idx))
	return idx, nil
}
