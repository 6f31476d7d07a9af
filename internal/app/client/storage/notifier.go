package storage

import gosync "sync"

// notifier оповещает подписчиков живых запросов о записи в таблицу
type notifier struct {
	mu   gosync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

func (n *notifier) subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[chan struct{}]struct{})
	}
	n.subs[topic][ch] = struct{}{}
	n.mu.Unlock()

	return ch, func() {
		n.mu.Lock()
		delete(n.subs[topic], ch)
		n.mu.Unlock()
	}
}

func (n *notifier) publish(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[topic] {
		// Подписчику важен сам факт изменения, лишние сигналы схлопываются
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
