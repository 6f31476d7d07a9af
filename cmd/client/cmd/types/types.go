package types

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"loanbook/internal/app/client"
)

type ctxKey string

// ClientAppKey ключ приложения в контексте команды
const ClientAppKey ctxKey = "app"

var (
	Success = color.New(color.FgGreen).SprintFunc()
	Warning = color.New(color.FgYellow).SprintFunc()
	Failure = color.New(color.FgRed).SprintFunc()
	Header  = color.New(color.Bold).SprintFunc()
)

// App достает приложение из контекста команды
func App(ctx context.Context) (*client.App, error) {
	app, ok := ctx.Value(ClientAppKey).(*client.App)
	if !ok || app == nil {
		return nil, fmt.Errorf("приложение не инициализировано")
	}
	return app, nil
}
