package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"loanbook/cmd/client/cmd/types"
)

var SignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Регистрация нового пользователя",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(types.Header("=== Регистрация ==="))
		login, password, err := readCredentials()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := app.Signup(ctx, login, password); err != nil {
			return fmt.Errorf("ошибка регистрации: %w", err)
		}
		fmt.Println(types.Success("✓ Пользователь зарегистрирован. Выполните: loanbook auth login"))
		return nil
	},
}
