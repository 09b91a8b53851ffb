package grpcserver

import (
	"context"
	"errors"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
)

type contextKey string

const (
	identityKey contextKey = "identity"
)

// MetadataAPIKey ключ метаданных с API ключом (аналог заголовка X-API-Key)
const MetadataAPIKey = "x-api-key"

// LoggingInterceptor логирует каждый вызов так же, как WithLogging логирует HTTP запросы
func LoggingInterceptor(logger *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.Infow("gRPC request failed",
				"method", info.FullMethod, // Вместо эндпоинта логируем дернутый метод
				"duration", duration,
				"code", status.Code(err).String(),
				"error", err,
			)
		} else {
			logger.Infow("gRPC request completed",
				"method", info.FullMethod,
				"duration", duration,
			)
		}

		return resp, err
	}
}

// AuthInterceptor проверяет API ключ из метаданных и кладёт идентичность клиента в контекст
func AuthInterceptor(identifier Identifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		// Пропускаем аутентификацию для публичных методов
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		var key string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(MetadataAPIKey); len(values) > 0 {
				key = values[0]
			}
		}

		identity, err := identifier.Identify(key)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				return nil, status.Error(codes.Unauthenticated, "missing or invalid API key")
			}
			return nil, status.Error(codes.Internal, "auth failed")
		}

		return handler(context.WithValue(ctx, identityKey, identity), req)
	}
}

func isPublicMethod(fullMethod string) bool {
	switch fullMethod {
	case methodResolve, methodMetrics, methodPing:
		return true
	}
	return false
}

// IdentityFromContext идентичность клиента, положенная AuthInterceptor
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok
}

// recoveryHandler превращает панику обработчика в codes.Internal
func recoveryHandler(logger *zap.SugaredLogger) grpc_recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p interface{}) error {
		logger.Errorw("gRPC handler panic", "panic", p)
		return status.Error(codes.Internal, "internal error")
	}
}

// interceptors цепочка: восстановление после паники, лог, аутентификация
func interceptors(logger *zap.SugaredLogger, identifier Identifier) grpc.UnaryServerInterceptor {
	return grpc_middleware.ChainUnaryServer(
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandlerContext(recoveryHandler(logger))),
		LoggingInterceptor(logger),
		AuthInterceptor(identifier),
	)
}
