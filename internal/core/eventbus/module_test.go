package eventbus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-liquiddb/config"
	"github.com/dep2p/go-liquiddb/internal/core/metrics"
	pkgif "github.com/dep2p/go-liquiddb/pkg/interfaces"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

// TestModule_Lifecycle 测试模块注入与停止时关闭总线
func TestModule_Lifecycle(t *testing.T) {
	var (
		bus   pkgif.EventBus
		inner *Bus
	)

	app := fxtest.New(t,
		Module(),
		fx.Populate(&bus, &inner),
	)
	app.RequireStart()

	assert.Same(t, inner, bus)
	sub, err := bus.Subscribe(new(types.EvtConnected))
	assert.NoError(t, err)

	app.RequireStop()

	_, ok := <-sub.Out()
	assert.False(t, ok)
}

// TestModule_ExportsDropped 测试慢消费者丢弃计数导出为指标
func TestModule_ExportsDropped(t *testing.T) {
	var (
		bus *Bus
		m   *metrics.Metrics
	)
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		metrics.Module(),
		Module(),
		fx.Populate(&bus, &m),
	)
	app.RequireStart()
	defer app.RequireStop()

	sub, err := bus.Subscribe(new(types.EvtConnected), BufSize(1))
	require.NoError(t, err)
	defer sub.Close()
	em, err := bus.Emitter(new(types.EvtConnected))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, em.Emit(types.EvtConnected{}))
	}

	expected := `
# HELP liquiddb_client_events_dropped_total Total lifecycle events dropped because a subscriber buffer was full
# TYPE liquiddb_client_events_dropped_total counter
liquiddb_client_events_dropped_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "liquiddb_client_events_dropped_total"))
}
