package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oidn_device_allocated_bytes",
		Help: "Current number of bytes allocated across all device buffers",
	})

	liveBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oidn_device_live_buffers",
		Help: "Current number of live device buffers",
	})

	engineTasks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oidn_engine_tasks_total",
		Help: "Total number of work items enqueued on device execution queues",
	})

	asyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oidn_engine_async_errors_total",
		Help: "Total number of asynchronous errors captured by device error slots",
	})
)
