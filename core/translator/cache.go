package translator

import (
	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
)

// analysis is the hint independent part of a translation. The graph is not
// modified once its flow has been recovered, so entries can be shared.
type analysis struct {
	graph *cfg.Graph
	flow  *flow.Result
}

// analysisCache keeps recent analyses keyed by code hash.
type analysisCache struct {
	entries *lru.Cache[common.Hash, *analysis]
}

func newAnalysisCache(size int) *analysisCache {
	if size <= 0 {
		return nil
	}
	return &analysisCache{entries: lru.NewCache[common.Hash, *analysis](size)}
}

func (c *analysisCache) get(hash common.Hash) *analysis {
	if c == nil {
		return nil
	}
	a, ok := c.entries.Get(hash)
	if !ok {
		cacheMissCounter.Inc(1)
		return nil
	}
	cacheHitCounter.Inc(1)
	return a
}

func (c *analysisCache) add(hash common.Hash, a *analysis) {
	if c != nil {
		c.entries.Add(hash, a)
	}
}

func (c *analysisCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
