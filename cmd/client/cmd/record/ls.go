package record

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/domain/sync"
)

var (
	showDeleted bool
	watch       bool
)

var lsCmd = &cobra.Command{
	Use:   "ls <table>",
	Short: "Список записей",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		table, err := sync.ParseTable(args[0])
		if err != nil {
			return err
		}

		if watch {
			for recs := range app.ObserveRecords(cmd.Context(), table, showDeleted) {
				fmt.Println(types.Header(fmt.Sprintf("--- %s: %d ---", table, len(recs))))
				if err := printRecords(recs); err != nil {
					return err
				}
			}
			return nil
		}

		recs, err := app.Records(cmd.Context(), table, showDeleted)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("Записи не найдены")
			return nil
		}
		return printRecords(recs)
	},
}

func printRecords(recs []sync.Record) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

func init() {
	lsCmd.Flags().BoolVar(&showDeleted, "deleted", false, "показывать удаленные записи")
	lsCmd.Flags().BoolVarP(&watch, "watch", "w", false, "следить за изменениями")
}
