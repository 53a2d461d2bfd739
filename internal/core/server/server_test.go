package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/segmenter/internal/core/api"
	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/db"
	"github.com/solatis/segmenter/internal/core/observability"
	"github.com/solatis/segmenter/internal/rules"
	"github.com/solatis/segmenter/internal/translate"
	"github.com/solatis/segmenter/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	refNow      = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
)

type testEnv struct {
	service   *api.SegmentService
	customers *db.CustomerStore
	metrics   *observability.Metrics
	cfg       config.ServerConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = db.MigrateUp(ctx, conn)
	require.NoError(t, err)
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)

	env := &testEnv{
		customers: db.NewCustomerStore(q),
		metrics:   observability.NewMetrics(),
		cfg:       config.Default().Server,
	}
	env.service, err = api.NewSegmentService(rules.DefaultRegistry(), db.NewSegmentStore(q), env.customers,
		api.WithLogger(quietLogger),
		api.WithMetrics(env.metrics),
		api.WithCalculatorOptions(rules.WithClock(func() time.Time { return refNow })),
		api.WithGenerator(translate.NewChain(quietLogger, translate.NewKeywordTranslator())),
	)
	require.NoError(t, err)

	for _, c := range []types.Customer{
		{ID: "alice", Attributes: types.Record{"totalSpend": 15000.0, "visits": 2}},
		{ID: "bob", Attributes: types.Record{"totalSpend": 500.0, "visits": 10}},
		{ID: "carol", Attributes: types.Record{"totalSpend": 12000.0, "visits": 8}},
	} {
		require.NoError(t, env.customers.Insert(ctx, &c))
	}
	return env
}

// dialBufconn serves the gRPC server in memory and returns a client for it.
func dialBufconn(t *testing.T, env *testEnv) (*Client, *grpc.ClientConn, *GRPCServer) {
	t.Helper()
	srv, err := NewGRPCServer(env.cfg, env.service, quietLogger, env.metrics)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.server.Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), conn, srv
}
