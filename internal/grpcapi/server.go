package grpcapi

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AdmissionService is the health service name reported for the admission path.
// The empty name reports overall server health.
const AdmissionService = "canteen.Admission"

// Server exposes the standard gRPC health protocol so orchestrators can probe
// the node without going through HTTP. Status follows the Ready probe.
type Server struct {
	log      *zap.Logger
	grpc     *grpc.Server
	health   *health.Server
	ready    func(ctx context.Context) error
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

type Config struct {
	Ready    func(ctx context.Context) error // nil means always serving
	Interval time.Duration                   // probe period; 0 disables background probing
}

func NewServer(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:      log.Named("grpc"),
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		ready:    cfg.Ready,
		interval: cfg.Interval,
		stop:     make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	go s.probeLoop()
	s.log.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Probe runs the readiness check once and publishes the result.
func (s *Server) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			s.log.Warn("readiness probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(status)
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(AdmissionService, st)
}

func (s *Server) probeLoop() {
	if s.interval <= 0 {
		<-s.stop
		return
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.Probe(ctx)
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Stop marks every service NOT_SERVING, then drains in-flight RPCs.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	})
}
