package record

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/app/client"
	"loanbook/internal/domain/sync"
)

var offline bool

// RecordCmd - родительская команда для всех операций с записями
var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Управление записями",
	Long: `Создание, просмотр и удаление записей в локальной базе.

Изменения сразу доступны локально и отправляются на сервер при синхронизации.`,
}

// push отправляет очередь сразу после изменения, если есть сеть и вход выполнен.
// Иначе изменение остается в очереди до следующей синхронизации.
func push(ctx context.Context, app *client.App) {
	if offline || !app.IsAuthenticated(ctx) || !app.CheckConnection(ctx) {
		fmt.Println(types.Warning("Изменение сохранено в очереди и будет отправлено при синхронизации"))
		return
	}

	report := app.Drain(ctx)
	if report.Outcome != sync.OutcomeSuccess {
		fmt.Println(types.Warning(fmt.Sprintf("Отправлено %d из %d изменений, остальные остались в очереди",
			report.Succeeded, report.Processed)))
	}
}

func init() {
	RecordCmd.PersistentFlags().BoolVar(&offline, "offline", false, "не отправлять изменения на сервер")
	RecordCmd.AddCommand(putCmd, rmCmd, lsCmd)
}
