// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/leafscan/internal/api"
	"github.com/SyedDaiam9101/leafscan/internal/cache"
	"github.com/SyedDaiam9101/leafscan/internal/config"
	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/handler"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
	"github.com/SyedDaiam9101/leafscan/internal/logging"
	"github.com/SyedDaiam9101/leafscan/internal/metrics"
	"github.com/SyedDaiam9101/leafscan/internal/middleware"
	"github.com/SyedDaiam9101/leafscan/internal/tracing"
)

const serviceName = "leafscan"

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "gRPC server port (default: 50051)")
	modelPath := flag.String("model", "", "Path to ONNX model file (default: "+detector.DefaultModelPath+")")
	redisAddr := flag.String("redis", "", "Redis address for the prediction cache (default: disabled)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use mock inference engine (for testing)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	flags := config.Flags{
		ConfigFile:  *configFile,
		Port:        *port,
		MetricsPort: *metricsPort,
		Model:       *modelPath,
		Redis:       *redisAddr,
		UseMock:     *useMock,
		Debug:       *debug,
	}

	cfg, err := config.Load(flags)
	if err != nil {
		logging.Setup("info", nil)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logging.Setup(cfg.LogLevel, nil); err != nil {
		logging.Setup("info", nil)
		log.Warn().Err(err).Msg("Falling back to info logging")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if used := config.ConfigFileUsed(flags); used != "" {
		log.Info().Str("file", used).Msg("Using config file")
	}

	log.Info().
		Str("version", Version).
		Int("port", cfg.Port).
		Int("metrics_port", cfg.MetricsPort).
		Str("model", cfg.Model).
		Str("model_version", cfg.ModelVersion).
		Str("redis", cfg.Redis).
		Bool("otel", cfg.OTELEnabled).
		Msgf("Starting %s", serviceName)

	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = tracing.Init(tracing.Options{
			ServiceName:    serviceName,
			ServiceVersion: Version,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracer")
		} else {
			log.Info().Str("endpoint", cfg.OTELEndpoint).Msg("OpenTelemetry tracing enabled")
		}
	}

	engine, err := loadEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("model", cfg.Model).Msg("Failed to load model")
	}
	defer engine.Close()
	log.Info().Int("classes", engine.NumClasses()).Msg("Inference engine ready")

	prep, err := cfg.Preprocessor()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid preprocessing configuration")
	}

	// Redis is optional; a nil ResultCache disables caching.
	var resultCache detector.ResultCache
	if cfg.Redis != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cacheClient, err := cache.New(ctx, cache.Options{Addr: cfg.Redis})
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis, continuing without cache")
		} else {
			defer cacheClient.Close()
			resultCache = cacheClient
			log.Info().Str("addr", cfg.Redis).Dur("ttl", cfg.CacheTTL).Msg("Prediction cache enabled")
		}
	}

	det := detector.New(engine, prep, resultCache, detector.Config{
		ModelVersion: cfg.ModelVersion,
		CacheTTL:     cfg.CacheTTL,
	})

	healthServer := health.NewServer()
	httpServer := startHTTPServer(cfg.MetricsPort, healthServer)

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRecoveryInterceptor(),
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	}
	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.MaxRecvMsgSize(cfg.MaxImageBytes),
	)

	api.RegisterDetectionServer(grpcServer, handler.New(det))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("Failed to listen")
	}

	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Give load balancers time to observe NOT_SERVING.
	done := handleShutdown(sigChan, 5*time.Second, healthServer, grpcServer, httpServer, tracerShutdown)

	log.Info().Str("addr", addr).Msgf("%s is ready to accept requests", serviceName)

	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal().Err(err).Msg("Failed to serve")
	}

	// Serve returns as soon as GracefulStop begins; wait for the HTTP
	// server and the span exporter to drain.
	<-done
	log.Info().Msg("Server shutdown complete")
}

// handleShutdown waits for a signal, marks the service NOT_SERVING, waits
// drain, then stops the servers and flushes traces. The returned channel is
// closed once every step has finished.
func handleShutdown(
	sigChan <-chan os.Signal,
	drain time.Duration,
	healthServer *health.Server,
	grpcServer *grpc.Server,
	httpServer *http.Server,
	tracerShutdown func(context.Context) error,
) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

		healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		time.Sleep(drain)

		grpcServer.GracefulStop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown")
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown")
			}
		}
	}()
	return done
}

func loadEngine(cfg *config.Config) (inference.Engine, error) {
	if cfg.UseMockInference {
		log.Info().Msg("Using mock inference engine")
		return inference.NewMock(), nil
	}
	log.Info().Str("model", cfg.Model).Msg("Loading ONNX model")
	return inference.Load(cfg.Model, inference.Options{
		SharedLibrary: cfg.ONNXLibrary,
		InputName:     cfg.InputName,
		OutputName:    cfg.OutputName,
		NumClasses:    cfg.NumClasses,
	})
}

func startHTTPServer(port int, healthServer *health.Server) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(healthServer, "OK", "Service Unavailable"))
	mux.HandleFunc("/readyz", healthHandler(healthServer, "Ready", "Not Ready"))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening (metrics, health)")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return server
}

func healthHandler(healthServer *health.Server, okBody, failBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(failBody))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(okBody))
	}
}
