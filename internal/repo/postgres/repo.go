// Package postgres holds the pgx-backed repositories. Sensitive columns are
// encrypted field by field on the way in and decrypted on the way out, so
// nothing above this layer ever sees ciphertext.
package postgres

// Metrics is the slice of the prometheus surface the repos need. Nil is fine;
// queries then run unobserved.
type Metrics interface {
	ObserveDB(op string, fn func() error) error
}

func observe(m Metrics, op string, fn func() error) error {
	if m == nil {
		return fn()
	}

	return m.ObserveDB(op, fn)
}
