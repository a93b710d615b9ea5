package metrics

import "github.com/sennetconsortium/entity-api/ports"

// InstrumentedCache counts hits and misses on the wrapped document cache.
type InstrumentedCache struct {
	inner     ports.Cache
	collector *Collector
}

// WrapCache decorates a cache with the collector's hit/miss counters.
func (c *Collector) WrapCache(inner ports.Cache) *InstrumentedCache {
	return &InstrumentedCache{inner: inner, collector: c}
}

func (i *InstrumentedCache) Get(key string) (map[string]any, bool) {
	doc, ok := i.inner.Get(key)
	if ok {
		i.collector.CacheHits.Inc()
	} else {
		i.collector.CacheMisses.Inc()
	}
	return doc, ok
}

func (i *InstrumentedCache) Set(key string, doc map[string]any) { i.inner.Set(key, doc) }
func (i *InstrumentedCache) Delete(key string)                  { i.inner.Delete(key) }
func (i *InstrumentedCache) Flush()                             { i.inner.Flush() }
