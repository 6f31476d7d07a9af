package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти в систему",
	Long: `Аутентификация на сервере.

После входа сессия сохраняется локально, данные загружаются с сервера,
а накопленные изменения отправляются.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(types.Header("=== Вход в систему ==="))
		login, password, err := readCredentials()
		if err != nil {
			return err
		}

		fmt.Println("Аутентификация...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if _, err := app.Login(ctx, login, password); err != nil {
			return fmt.Errorf("ошибка аутентификации: %w", err)
		}
		fmt.Println(types.Success("✓ Вход выполнен успешно"))

		fmt.Println("Синхронизация данных...")
		report := app.Drain(cmd.Context())
		if report.Failed > 0 {
			fmt.Println(types.Warning(fmt.Sprintf("⚠ Не отправлено изменений: %d", report.Failed)))
		}

		result, err := app.Refresh(cmd.Context())
		switch {
		case err != nil:
			fmt.Println(types.Warning(fmt.Sprintf("⚠ Ошибка синхронизации: %v", err)))
			fmt.Println("Вы можете продолжить работу в офлайн-режиме")
		case len(result.Skipped()) > 0:
			fmt.Println(types.Warning(fmt.Sprintf("⚠ Не загружены таблицы: %v", result.Skipped())))
		default:
			fmt.Println(types.Success("✓ Данные синхронизированы"))
		}
		return nil
	},
}
