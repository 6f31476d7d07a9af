package sync

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
)

var DaemonCmd = &cobra.Command{
	Use:         "daemon",
	Short:       "Фоновая синхронизация",
	Long:        `Запускает периодическую синхронизацию и отправку изменений при появлении сети. Работает до SIGINT/SIGTERM.`,
	Annotations: map[string]string{"daemon": "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		fmt.Println(types.Success("Демон синхронизации запущен. Ctrl+C для остановки"))
		return app.RunDaemon(ctx)
	},
}
