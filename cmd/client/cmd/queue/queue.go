package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/domain/sync"
)

// QueueCmd - работа с очередью неотправленных изменений
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Очередь неотправленных изменений",
}

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать очередь",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}
		changes, err := app.Pending(cmd.Context())
		if err != nil {
			return err
		}
		return printChanges(changes)
	},
}

var deadCmd = &cobra.Command{
	Use:   "dead",
	Short: "Изменения на последней попытке",
	Long: `Изменения, которые уже не прошли все попытки кроме последней.
После следующей неудачи они будут сняты с очереди без отправки.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}
		changes, err := app.AtRisk(cmd.Context())
		if err != nil {
			return err
		}
		return printChanges(changes)
	},
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить все изменения из очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}
		if !clearYes {
			return fmt.Errorf("изменения будут потеряны без отправки, подтвердите флагом --yes")
		}
		if err := app.ClearQueue(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(types.Success("✓ Очередь очищена"))
		return nil
	},
}

var enqueueRecordID string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <table> <INSERT|UPDATE|DELETE> [json]",
	Short: "Поставить изменение в очередь вручную",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		table, err := sync.ParseTable(args[0])
		if err != nil {
			return err
		}
		op, err := sync.ParseOperation(args[1])
		if err != nil {
			return err
		}
		payload := sync.Record{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
				return fmt.Errorf("%w: %v", sync.ErrInvalidPayload, err)
			}
		}
		if enqueueRecordID == "" {
			enqueueRecordID = payload.ID()
		}

		id := app.Enqueue(cmd.Context(), table, enqueueRecordID, op, payload)
		fmt.Println(types.Success(fmt.Sprintf("✓ %s %s/%s поставлено в очередь", op, table, id)))
		return nil
	},
}

func printChanges(changes []sync.PendingChange) error {
	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(changes)
	}
	if len(changes) == 0 {
		fmt.Println("Очередь пуста")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tТаблица\tЗапись\tОперация\tПопыток\tСоздано\tОшибка\t\n")
	for _, c := range changes {
		lastErr := ""
		if c.LastError != nil {
			lastErr = truncate(*c.LastError, 40)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			c.ID,
			c.Table,
			c.RecordID,
			c.Operation,
			c.RetryCount,
			c.Created().Format(time.DateTime),
			lastErr,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nВсего: %d\n", len(changes))
	return nil
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func init() {
	QueueCmd.PersistentFlags().BoolVar(&listJSON, "json", false, "вывод в формате JSON")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "подтвердить удаление")
	enqueueCmd.Flags().StringVar(&enqueueRecordID, "id", "", "id записи (по умолчанию новый UUID)")

	QueueCmd.AddCommand(listCmd, deadCmd, clearCmd, enqueueCmd)
}
