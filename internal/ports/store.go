package ports

// Store es un almacén genérico clave/valor.
type Store[T any] interface {
	Put(key string, value T) error
	Get(key string) (T, error)
	Delete(key string) error
	List() ([]T, error)
	Keys() []string
}
