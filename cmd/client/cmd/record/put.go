package record

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/domain/sync"
)

var putCmd = &cobra.Command{
	Use:   "put <table> <json>",
	Short: "Создать или обновить запись",
	Long: `Создает запись, если в JSON нет id или записи с таким id нет,
иначе обновляет указанные поля.

Пример:
  loanbook record put customers '{"name":"Анна","phone":"+7900"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		table, err := sync.ParseTable(args[0])
		if err != nil {
			return err
		}
		var rec sync.Record
		if err := json.Unmarshal([]byte(args[1]), &rec); err != nil {
			return fmt.Errorf("%w: %v", sync.ErrInvalidPayload, err)
		}

		saved, err := app.Save(cmd.Context(), table, rec)
		if err != nil {
			return err
		}
		fmt.Println(types.Success(fmt.Sprintf("✓ Запись %s/%s сохранена", table, saved.ID())))
		push(cmd.Context(), app)
		return nil
	},
}
