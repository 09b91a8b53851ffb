// Package grpcserver gRPC транспорт сокращателя поверх тех же ссылок, ограничителя и метрик,
// что и HTTP диспетчер. Сервис описан вручную через grpc.ServiceDesc на стандартных
// типах protobuf, поэтому отдельный .proto не нужен.
package grpcserver

import (
	"context"
	"errors"
	"math"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/app"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/ratelimit"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
)

const (
	serviceName = "shortener.Shortener"

	methodShorten = "/" + serviceName + "/Shorten"
	methodResolve = "/" + serviceName + "/Resolve"
	methodMetrics = "/" + serviceName + "/Metrics"
	methodPing    = "/" + serviceName + "/Ping"
)

// Метаданные ответа при отказе ограничителя
const (
	MetadataRateLimitTier = "x-ratelimit-tier"
	MetadataRetryAfter    = "retry-after"
)

// Identifier проверка API ключа
type Identifier = app.Identifier

// ShortenerServer методы сервиса shortener.Shortener
type ShortenerServer interface {
	Shorten(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Resolve(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Metrics(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	Ping(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
}

// GRPCServer реализация ShortenerServer
type GRPCServer struct {
	service *app.Service
	logger  *zap.SugaredLogger
}

// NewGRPCServer создаёт реализацию сервиса
func NewGRPCServer(service *app.Service, logger *zap.SugaredLogger) *GRPCServer {
	return &GRPCServer{
		service: service,
		logger:  logger,
	}
}

// NewServer grpc.Server с цепочкой перехватчиков и зарегистрированным сервисом
func NewServer(service *app.Service, logger *zap.SugaredLogger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(interceptors(logger, service.Auth)))
	s := grpc.NewServer(opts...)
	RegisterShortenerServer(s, NewGRPCServer(service, logger))
	return s
}

// RegisterShortenerServer регистрирует реализацию на сервере
func RegisterShortenerServer(s grpc.ServiceRegistrar, srv ShortenerServer) {
	s.RegisterService(&ShortenerServiceDesc, srv)
}

// Shorten порядок тот же, что у POST /api/shorten: ссылка, ограничитель, запись
func (s *GRPCServer) Shorten(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing identity in context")
	}

	if err := s.service.Links.Validate(in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	decision := s.service.Limiter.Admit(identity)
	if !decision.Allowed {
		return nil, s.rateLimited(ctx, decision)
	}

	link, err := s.service.Links.Shorten(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(link.Code), nil
}

// Resolve аналог GET /s/{code}: только глобальный bucket
func (s *GRPCServer) Resolve(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	decision := s.service.Limiter.AdmitGlobal()
	if !decision.Allowed {
		return nil, s.rateLimited(ctx, decision)
	}

	original, err := s.service.Links.Resolve(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(original), nil
}

// Metrics снимок метрик, ограничителем не учитывается
func (s *GRPCServer) Metrics(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.service.Metrics.Snapshot()
	out, err := structpb.NewStruct(map[string]interface{}{
		"globalCapacity":        snap.GlobalCapacity,
		"globalTokensAvailable": snap.GlobalTokensAvailable,
		"globalTokensUsed":      snap.GlobalTokensUsed,
		"activeClientCount":     snap.ActiveClientCount,
		"totalLinksStored":      snap.TotalLinksStored,
		"linksResolved":         snap.LinksResolved,
		"admitted":              snap.Admitted,
		"globalRejected":        snap.GlobalRejected,
		"clientRejected":        snap.ClientRejected,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Ping проверка хранилища
func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.service.Links.Ping(ctx); err != nil {
		s.logger.Errorw("storage ping failed", "error", err)
		return nil, status.Error(codes.Unavailable, "storage unavailable")
	}
	return &emptypb.Empty{}, nil
}

// rateLimited отдаёт уровень отказа и время ожидания в trailer
func (s *GRPCServer) rateLimited(ctx context.Context, d ratelimit.Decision) error {
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	if err := grpc.SetTrailer(ctx, metadata.Pairs(
		MetadataRateLimitTier, d.Tier.String(),
		MetadataRetryAfter, strconv.Itoa(seconds),
	)); err != nil {
		s.logger.Debugw("failed to set rate limit trailer", "error", err)
	}
	return toStatus(d.Err())
}

// toStatus ошибки домена в коды gRPC
func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidURL),
		errors.Is(err, store.ErrURLTooLong),
		errors.Is(err, store.ErrUnsupportedScheme):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrLinkNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ratelimit.ErrGlobalRateLimited),
		errors.Is(err, ratelimit.ErrClientRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func shortenHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShortenerServer).Shorten(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodShorten}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShortenerServer).Shorten(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func resolveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShortenerServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodResolve}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShortenerServer).Resolve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func metricsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShortenerServer).Metrics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodMetrics}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShortenerServer).Metrics(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShortenerServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPing}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ShortenerServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ShortenerServiceDesc описание сервиса shortener.Shortener
var ShortenerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ShortenerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Shorten", Handler: shortenHandler},
		{MethodName: "Resolve", Handler: resolveHandler},
		{MethodName: "Metrics", Handler: metricsHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shortener.proto",
}
