package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
)

var force bool

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Выйти из системы",
	Long: `Удаляет сессию и локальные данные, снимает фоновую синхронизацию.

Неотправленные изменения будут потеряны, поэтому при непустой очереди
требуется флаг --force.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		pending, err := app.Sync().PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		if pending > 0 && !force {
			return fmt.Errorf("в очереди %d неотправленных изменений. Выполните 'loanbook sync --drain' или повторите с --force", pending)
		}

		if err := app.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(types.Success("✓ Выход выполнен"))
		return nil
	},
}

func init() {
	LogoutCmd.Flags().BoolVarP(&force, "force", "f", false, "выйти, даже если остались неотправленные изменения")
}
