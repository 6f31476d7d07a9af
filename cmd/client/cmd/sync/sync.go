package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/app/client"
	domain "loanbook/internal/domain/sync"
)

var (
	syncStatus bool
	drainOnly  bool
	jsonOutput bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизация с сервером",
	Long: `Синхронизация данных между клиентом и сервером.

Без флагов сначала отправляет накопленные изменения, затем загружает
актуальные данные всех таблиц.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		if syncStatus {
			return showSyncStatus(cmd.Context(), app)
		}
		return runSync(cmd.Context(), app, drainOnly)
	},
}

func runSync(ctx context.Context, app *client.App, drainOnly bool) error {
	fmt.Println(types.Header("=== Синхронизация данных ==="))

	if !app.IsAuthenticated(ctx) {
		return fmt.Errorf("требуется аутентификация. Выполните: loanbook auth login")
	}

	fmt.Println("Проверка соединения с сервером...")
	if !app.CheckConnection(ctx) {
		return fmt.Errorf("сервер недоступен, изменения останутся в очереди")
	}

	start := time.Now()
	report := app.Drain(ctx)
	printRunReport(report)

	if !drainOnly {
		result, err := app.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}
		printFullSync(result)
	}

	fmt.Printf("Время выполнения: %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printRunReport(r domain.RunReport) {
	fmt.Printf("Отправлено изменений: %d из %d\n", r.Succeeded, r.Processed)
	if r.DeadLettered > 0 {
		fmt.Println(types.Failure(fmt.Sprintf("✗ Снято с очереди после ошибок: %d", r.DeadLettered)))
	}
	switch {
	case r.Interrupted:
		fmt.Println(types.Warning("⚠ Отправка прервана, остаток будет отправлен позже"))
	case r.Outcome == domain.OutcomeSuccess:
		fmt.Println(types.Success("✓ Очередь разобрана"))
	case r.Outcome == domain.OutcomeRetry:
		fmt.Println(types.Warning(fmt.Sprintf("⚠ Не отправлено: %d, будет повторено", r.Failed)))
	default:
		fmt.Println(types.Failure(fmt.Sprintf("✗ Не удалось отправить изменения: %d", r.Failed)))
	}
}

func printFullSync(r *domain.FullSyncReport) {
	for _, t := range r.Tables {
		if t.Skipped {
			fmt.Printf("  %-18s %s\n", t.Table, types.Warning("пропущена: "+t.Error))
			continue
		}
		fmt.Printf("  %-18s получено %d, записано %d\n", t.Table, t.Fetched, t.Written)
	}
	if skipped := r.Skipped(); len(skipped) > 0 {
		fmt.Println(types.Warning(fmt.Sprintf("⚠ Таблицы сохранили прежние данные: %v", skipped)))
		return
	}
	fmt.Println(types.Success("✓ Данные синхронизированы"))
}

func showSyncStatus(ctx context.Context, app *client.App) error {
	status, err := app.Status(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Println(types.Header("=== Статус синхронизации ==="))
	fmt.Print("Соединение с сервером: ")
	if status.Online {
		fmt.Println(types.Success("OK"))
	} else {
		fmt.Println(types.Failure("недоступен"))
	}

	fmt.Print("Аутентификация: ")
	if status.Authenticated {
		fmt.Println(types.Success(status.Login))
	} else {
		fmt.Println(types.Failure("требуется вход"))
	}

	fmt.Printf("Изменений в очереди: %d\n", status.Pending)
	if status.AtRisk > 0 {
		fmt.Println(types.Warning(fmt.Sprintf("На последней попытке: %d (loanbook queue dead)", status.AtRisk)))
	}
	for _, w := range status.Works {
		fmt.Printf("Работа %s: %s, попытка %d\n", w.Name, w.State, w.Attempt)
	}
	return nil
}

func init() {
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статус синхронизации")
	SyncCmd.Flags().BoolVar(&drainOnly, "drain", false, "только отправить накопленные изменения")
	SyncCmd.Flags().BoolVar(&jsonOutput, "json", false, "вывод статуса в формате JSON")

	SyncCmd.AddCommand(DaemonCmd)
}
