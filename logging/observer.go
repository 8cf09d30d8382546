package logging

import (
	"go.uber.org/zap"

	"github.com/adeilh/rakh-cache/cache/memory"
)

// Observer writes cache events to a zap logger. Lookups and writes go to
// debug, evictions to warn since they signal an undersized cache.
type Observer struct {
	log *zap.Logger
}

var _ memory.Observer = (*Observer)(nil)

func NewObserver(log *zap.Logger) *Observer {
	return &Observer{log: OrNop(log).Named("cache")}
}

func (o *Observer) Hit(key string)    { o.log.Debug("hit", zap.String("key", key)) }
func (o *Observer) Miss(key string)   { o.log.Debug("miss", zap.String("key", key)) }
func (o *Observer) Expire(key string) { o.log.Debug("expired", zap.String("key", key)) }
func (o *Observer) Set(key string)    { o.log.Debug("set", zap.String("key", key)) }
func (o *Observer) Evict(key string)  { o.log.Warn("evicted", zap.String("key", key)) }

func (o *Observer) Clear(removed int) {
	o.log.Info("cleared", zap.Int("removed", removed))
}
