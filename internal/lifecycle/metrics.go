package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_files_created_total",
		Help: "Files accepted by the lifecycle engine.",
	})

	filesArmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmpshare_files_armed_total",
		Help: "Files whose expiry timer was started by a first download.",
	})

	filesRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmpshare_files_removed_total",
		Help: "Files removed, by reason.",
	}, []string{"reason"})
)
