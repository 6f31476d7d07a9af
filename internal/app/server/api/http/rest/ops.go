package rest

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const tablePath = "/rest/v1/{table}"

var bearer = []map[string][]string{{"bearer": {}}}

func (h *Handler) selectOp() huma.Operation {
	return huma.Operation{
		OperationID: "rest-select",
		Method:      http.MethodGet,
		Path:        tablePath,
		Summary:     "Строки таблицы владельца",
		Tags:        []string{"rest"},
		Security:    bearer,
		Middlewares: h.middleware,
	}
}

func (h *Handler) insertOp() huma.Operation {
	return huma.Operation{
		OperationID:   "rest-insert",
		Method:        http.MethodPost,
		Path:          tablePath,
		Summary:       "Вставка строки",
		Tags:          []string{"rest"},
		DefaultStatus: http.StatusCreated,
		Security:      bearer,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) updateOp() huma.Operation {
	return huma.Operation{
		OperationID:   "rest-update",
		Method:        http.MethodPatch,
		Path:          tablePath,
		Summary:       "Частичное обновление строк по фильтру",
		Tags:          []string{"rest"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearer,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID:   "rest-delete",
		Method:        http.MethodDelete,
		Path:          tablePath,
		Summary:       "Удаление строк по фильтру",
		Tags:          []string{"rest"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearer,
		Middlewares:   h.middleware,
	}
}
