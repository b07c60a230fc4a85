package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GameServiceName is the fully qualified gRPC service name.
const GameServiceName = "threatlanes.v1.Game"

// GameServiceServer is the gRPC game facade. Requests and responses are
// google.protobuf.Struct messages carrying the same JSON shapes as the HTTP
// API.
type GameServiceServer interface {
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewFight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(call func(GameServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GameServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + GameServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(GameServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// GameServiceDesc describes the game service for grpc.Server.RegisterService.
var GameServiceDesc = grpc.ServiceDesc{
	ServiceName: GameServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: unaryHandler(GameServiceServer.GetState, "GetState")},
		{MethodName: "SubmitAction", Handler: unaryHandler(GameServiceServer.SubmitAction, "SubmitAction")},
		{MethodName: "PreviewFight", Handler: unaryHandler(GameServiceServer.PreviewFight, "PreviewFight")},
		{MethodName: "Plan", Handler: unaryHandler(GameServiceServer.Plan, "Plan")},
	},
	Metadata: "threatlanes/v1/game.proto",
}

// gameService adapts Server to GameServiceServer.
type gameService struct {
	s *Server
}

// NewGRPCServer builds a gRPC server carrying the game service and the
// standard health service. The returned health server reports SERVING until
// Shutdown is called on it.
func (s *Server) NewGRPCServer() (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	}
	if n := s.cfg.GRPC.MaxConcurrentStreams; n > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(n)))
	}
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&GameServiceDesc, &gameService{s: s})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(GameServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func (g *gameService) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requireField(req, "game_id")
	if err != nil {
		return nil, err
	}
	view, err := g.s.engine.GetRedactedState(gameID, fieldString(req, "viewer"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (g *gameService) SubmitAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		GameID   string             `json:"game_id"`
		PlayerID string             `json:"player_id"`
		Type     game.ActionType    `json:"type"`
		Payload  game.ActionPayload `json:"payload"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.GameID == "" || in.PlayerID == "" || in.Type == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id, player_id and type are required")
	}
	if err := g.s.SubmitAction(in.GameID, in.PlayerID, game.Action{Type: in.Type, Payload: in.Payload}); err != nil {
		return nil, grpcError(err)
	}
	view, err := g.s.engine.GetRedactedState(in.GameID, in.PlayerID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (g *gameService) PreviewFight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		GameID   string             `json:"game_id"`
		PlayerID string             `json:"player_id"`
		Payload  game.ActionPayload `json:"payload"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	preview, err := g.s.engine.PreviewFight(in.GameID, in.PlayerID, in.Payload)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(preview)
}

func (g *gameService) Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		GameID      string `json:"game_id"`
		PlayerID    string `json:"player_id"`
		MaxDepth    int    `json:"max_depth"`
		MaxBranches int    `json:"max_branches"`
		TopN        int    `json:"top_n"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := g.s.Plan(ctx, in.GameID, in.PlayerID, planner.Constraints{
		MaxDepth:    in.MaxDepth,
		MaxBranches: in.MaxBranches,
		TopN:        in.TopN,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

// grpcError maps engine errors onto status codes.
func grpcError(err error) error {
	code := codes.Internal
	var ae *game.ActionError
	switch {
	case errors.Is(err, ErrBadRequest):
		code = codes.InvalidArgument
	case errors.Is(err, game.ErrGameNotFound):
		code = codes.NotFound
	case errors.Is(err, game.ErrGameExists):
		code = codes.AlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.As(err, &ae):
		switch ae.Kind {
		case game.KindPlayerNotFound:
			code = codes.NotFound
		case game.KindNotYourTurn, game.KindWrongPhase, game.KindGameOver:
			code = codes.FailedPrecondition
		case game.KindUnknownAction, game.KindInvalidPayload:
			code = codes.InvalidArgument
		default:
			code = codes.FailedPrecondition
		}
	}
	return status.Error(code, err.Error())
}

func requireField(req *structpb.Struct, name string) (string, error) {
	v := strings.TrimSpace(fieldString(req, name))
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}

func fieldString(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func fromStruct(req *structpb.Struct, out any) error {
	raw, err := req.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// RecoveryInterceptor turns handler panics into Internal errors.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, fmt.Sprintf("internal error: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every unary call with its peer and outcome.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("peer", extractHostFromContext(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil && status.Code(err) == codes.Internal {
			logger.Error("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc call", fields...)
		}
		return resp, err
	}
}

func extractHostFromContext(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != net.Addr(nil) {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
