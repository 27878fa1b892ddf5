package storage

import "context"

// FileUploader — внешнее хранилище текстов аргументов. Ключ назначает
// вызывающий, обратно возвращается публичный URL объекта.
type FileUploader interface {
	UploadText(ctx context.Context, key string, content string) (string, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
