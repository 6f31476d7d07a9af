package storage

import (
	"context"

	"golang.org/x/exp/slog"
)

// observe отдает текущее значение запроса и новое значение после каждой
// записи в topic. Канал закрывается при отмене ctx.
func observe[T any](ctx context.Context, n *notifier, log *slog.Logger, topic string, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	changed, unsubscribe := n.subscribe(topic)

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("Ошибка живого запроса", "topic", topic, "error", err)
			} else {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
