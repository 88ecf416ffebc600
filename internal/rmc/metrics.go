package rmc

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// rpcRequests counts dispatched frames across both listeners. It lives on
// the default registry; the admin surface folds it into /metrics.
var rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "amkj_rmc_requests_total",
	Help: "RMC requests by listener, protocol, method and result.",
}, []string{"listener", "protocol", "method", "result"})

func observeRPC(listener string, protocol uint8, method uint32, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	rpcRequests.WithLabelValues(listener,
		strconv.FormatUint(uint64(protocol), 10),
		strconv.FormatUint(uint64(method), 10),
		result).Inc()
}
