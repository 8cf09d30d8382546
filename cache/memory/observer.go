package memory

// Observer receives cache events. Implementations must be safe for
// concurrent use; the cache calls them outside its lock.
type Observer interface {
	Hit(key string)
	Miss(key string)
	Expire(key string)
	Evict(key string)
	Set(key string)
	Clear(removed int)
}

// NoopObserver discards every event.
type NoopObserver struct{}

func (NoopObserver) Hit(string)    {}
func (NoopObserver) Miss(string)   {}
func (NoopObserver) Expire(string) {}
func (NoopObserver) Evict(string)  {}
func (NoopObserver) Set(string)    {}
func (NoopObserver) Clear(int)     {}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	list := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) Hit(key string) {
	for _, o := range m {
		o.Hit(key)
	}
}

func (m multiObserver) Miss(key string) {
	for _, o := range m {
		o.Miss(key)
	}
}

func (m multiObserver) Expire(key string) {
	for _, o := range m {
		o.Expire(key)
	}
}

func (m multiObserver) Evict(key string) {
	for _, o := range m {
		o.Evict(key)
	}
}

func (m multiObserver) Set(key string) {
	for _, o := range m {
		o.Set(key)
	}
}

func (m multiObserver) Clear(removed int) {
	for _, o := range m {
		o.Clear(removed)
	}
}
