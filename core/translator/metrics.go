package translator

import "github.com/ethereum/go-ethereum/metrics"

var (
	contractCounter  = metrics.NewRegisteredCounter("e2m/contract/translated", nil)
	contractFailures = metrics.NewRegisteredCounter("e2m/contract/failed", nil)
	cacheHitCounter  = metrics.NewRegisteredCounter("e2m/cache/hit", nil)
	cacheMissCounter = metrics.NewRegisteredCounter("e2m/cache/miss", nil)
	functionCounter  = metrics.NewRegisteredCounter("e2m/function/built", nil)
	functionFailures = metrics.NewRegisteredCounter("e2m/function/failed", nil)

	flowTimer = metrics.NewRegisteredTimer("e2m/flow/time", nil)
	irTimer   = metrics.NewRegisteredTimer("e2m/ir/time", nil)
)
