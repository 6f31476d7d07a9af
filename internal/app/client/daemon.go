package client

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slog"
)

// RunDaemon фоновый режим: проверка сети, периодическая синхронизация,
// разбор очереди при появлении сети и слежение за файлом токена.
// Блокируется до отмены ctx.
func (a *App) RunDaemon(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ошибка создания наблюдателя: %w", err)
	}
	defer watcher.Close()

	// следим за директорией: файл токена может еще не существовать
	if err := watcher.Add(filepath.Dir(a.sessions.Path())); err != nil {
		return fmt.Errorf("ошибка наблюдения за %s: %w", a.sessions.Path(), err)
	}

	var wg gosync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.reach.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.sync.WatchReachability(ctx)
	}()

	if a.IsAuthenticated(ctx) {
		a.startSync(ctx)
	} else {
		a.log.Warn("Нет активной сессии, синхронизация начнется после входа")
	}

	a.log.Info("Демон синхронизации запущен",
		"server", a.config.ServerAddress,
		"env", a.config.Env,
	)

	a.watchToken(ctx, watcher)

	a.scheduler.Shutdown()
	wg.Wait()
	a.bg.Wait()
	a.log.Info("Демон синхронизации остановлен")
	return nil
}

func (a *App) startSync(ctx context.Context) {
	if err := a.sync.SchedulePeriodicSync(ctx); err != nil {
		a.log.Error("Ошибка планирования синхронизации", "error", err)
		return
	}
	a.sync.SyncNow()
}

func (a *App) watchToken(ctx context.Context, watcher *fsnotify.Watcher) {
	token := filepath.Clean(a.sessions.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != token {
				continue
			}
			a.handleTokenEvent(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.log.Warn("Ошибка наблюдения за файлом токена", "error", err)
		}
	}
}

func (a *App) handleTokenEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		a.log.Info("Токен удален, фоновая синхронизация остановлена")
		a.sessions.Forget()
		a.sync.Cancel()
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if _, err := a.sessions.Load(); err != nil {
			// файл может быть записан не полностью, дождемся следующего события
			a.log.Debug("Токен пока не читается", "error", err)
			return
		}
		a.log.Info("Получена новая сессия, запускаем синхронизацию", slog.String("op", ev.Op.String()))
		a.startSync(ctx)
		a.refreshAsync(ctx)
	}
}

func (a *App) refreshAsync(ctx context.Context) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		report, err := a.sync.RefreshAll(ctx)
		if err != nil {
			a.log.Warn("Полная синхронизация не удалась", "error", err)
			return
		}
		a.log.Info("Полная синхронизация завершена", "skipped", report.Skipped())
	}()
}
