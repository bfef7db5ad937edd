package service

import "errors"

// Ошибки сервисного слоя. API переводит их в HTTP статусы.
var (
	ErrNotFound       = errors.New("пользователь или привязка роли не найдены")
	ErrConflict       = errors.New("роль уже назначена")
	ErrInvalidRole    = errors.New("неизвестная роль (admin, editor, visualizador)")
	ErrValidation     = errors.New("некорректный запрос")
	ErrIDPUnavailable = errors.New("Keycloak недоступен")
)
