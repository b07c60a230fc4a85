package server

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialGRPC(t *testing.T, ts *testServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, hs := ts.NewGRPCServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		hs.Shutdown()
		srv.Stop()
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/"+GameServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPCHealth(t *testing.T) {
	ts := newTestServer(t)
	conn := dialGRPC(t, ts)

	client := healthpb.NewHealthClient(conn)
	for _, svc := range []string{"", GameServiceName} {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func TestGRPCGameService(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/games", twoHumans("g")).Code)
	conn := dialGRPC(t, ts)

	state, err := invoke(t, conn, "GetState", map[string]any{"game_id": "g", "viewer": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", state.GetFields()["active_player"].GetStringValue())
	checksum := state.GetFields()["checksum"].GetStringValue()

	_, err = invoke(t, conn, "GetState", map[string]any{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "GetState", map[string]any{"game_id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	plan, err := invoke(t, conn, "Plan", map[string]any{"game_id": "g", "player_id": "alice", "max_depth": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.GetFields()["actions"].GetListValue().GetValues())

	_, err = invoke(t, conn, "PreviewFight", map[string]any{"game_id": "g", "player_id": "alice", "payload": map[string]any{"lane": 0}})
	if err != nil {
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	}

	state, err = invoke(t, conn, "GetState", map[string]any{"game_id": "g"})
	require.NoError(t, err)
	assert.Equal(t, checksum, state.GetFields()["checksum"].GetStringValue())

	_, err = invoke(t, conn, "SubmitAction", map[string]any{"game_id": "g", "player_id": "bob", "type": "end_turn"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	state, err = invoke(t, conn, "SubmitAction", map[string]any{"game_id": "g", "player_id": "alice", "type": "end_turn"})
	require.NoError(t, err)
	assert.Equal(t, "bob", state.GetFields()["active_player"].GetStringValue())
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Panic"}
	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
