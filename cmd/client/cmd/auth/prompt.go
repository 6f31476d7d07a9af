package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func readCredentials() (string, string, error) {
	fmt.Print("Логин: ")
	reader := bufio.NewReader(os.Stdin)
	login, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("ошибка чтения логина: %w", err)
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return "", "", fmt.Errorf("логин не может быть пустым")
	}

	fmt.Print("Пароль: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("ошибка чтения пароля: %w", err)
	}
	if len(password) == 0 {
		return "", "", fmt.Errorf("пароль не может быть пустым")
	}
	return login, string(password), nil
}
