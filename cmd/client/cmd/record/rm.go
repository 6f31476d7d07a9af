package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/domain/sync"
)

var rmCmd = &cobra.Command{
	Use:   "rm <table> <id>",
	Short: "Удалить запись (мягкое удаление)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		table, err := sync.ParseTable(args[0])
		if err != nil {
			return err
		}
		if err := app.Remove(cmd.Context(), table, args[1]); err != nil {
			return err
		}
		fmt.Println(types.Success(fmt.Sprintf("✓ Запись %s/%s удалена", table, args[1])))
		push(cmd.Context(), app)
		return nil
	},
}
