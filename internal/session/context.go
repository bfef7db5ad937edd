package session

import "context"

type contextKey struct{}

// WithStore помещает store клиента в контекст запроса.
func WithStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

// FromContext извлекает store клиента из контекста.
// Возвращает nil, если запрос не прошёл через middleware клиента.
func FromContext(ctx context.Context) *Store {
	st, ok := ctx.Value(contextKey{}).(*Store)
	if !ok {
		return nil
	}
	return st
}
