package postgres

import "salesrollup/internal/storage"

func init() {
	storage.Register("postgres", New)
}
