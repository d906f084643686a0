package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConcurrentWrite signals that a competing transaction claimed the same row or slot first.
var ErrConcurrentWrite = errors.New("concurrent write")

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
)

func mapPQError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqSerializationFailure:
			return fmt.Errorf("%s: %w (%s)", op, ErrConcurrentWrite, pqErr.Code)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func paging(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
