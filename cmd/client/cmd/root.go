package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"loanbook/cmd/client/cmd/auth"
	"loanbook/cmd/client/cmd/queue"
	"loanbook/cmd/client/cmd/record"
	"loanbook/cmd/client/cmd/sync"
	"loanbook/cmd/client/cmd/types"
	"loanbook/internal/app/client"
	"loanbook/internal/app/client/config"
	"loanbook/internal/utils/logger"
)

var (
	cfgFile   string
	debug     bool
	serverURL string
	app       *client.App
)

var rootCmd = &cobra.Command{
	Use:   "loanbook",
	Short: "loanbook - учет займов и подписок",
	Long: `loanbook: клиент для учета клиентов, займов и подписок.

Данные хранятся локально и работают без сети. Изменения копятся в очереди
и отправляются на сервер, когда он доступен.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "%s %v\n", types.Failure("Ошибка:"), err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if debug {
		cfg.Env = config.EnvDev
	}

	var log *slog.Logger
	if cmd.Annotations["daemon"] == "true" {
		log = logger.NewWithFile(cfg.Env, cfg.LogFile)
	} else if debug {
		log = logger.New(cfg.Env)
	} else {
		log = logger.Discard()
	}

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), types.ClientAppKey, app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return config.Load(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера")

	rootCmd.AddCommand(auth.AuthCmd, sync.SyncCmd, queue.QueueCmd, record.RecordCmd)
}
