package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd - родительская команда для всех операций с авторизацией пользователя
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Управление пользователем",
	Long:  `Вход, выход и регистрация.`,
}

func init() {
	AuthCmd.AddCommand(LoginCmd, LogoutCmd, SignupCmd)
}
