package repository

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// QueryObserver receives the duration of each repository query.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveDBQuery(string, time.Duration) {}

func observerOrNop(o QueryObserver) QueryObserver {
	if o == nil {
		return noopObserver{}
	}
	return o
}

func track(o QueryObserver, label string) func() {
	start := time.Now()
	return func() { o.ObserveDBQuery(label, time.Since(start)) }
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
