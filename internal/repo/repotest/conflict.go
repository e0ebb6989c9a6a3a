// Package repotest reúne stores de apoio para testes dos engines.
package repotest

import (
	"context"
	"sync/atomic"

	"github.com/lib/pq"

	"github.com/radieske/sports-bet-ledger/internal/repo"
)

// ConflictStore reproduz o retry de repo.Postgres sobre qualquer Store: a
// primeira tentativa de cada InTx executa fn por inteiro e então aborta com
// serialization failure (40001), o que desfaz tudo; a segunda é confirmada.
type ConflictStore struct {
	repo.Store
	attempts atomic.Int64
}

func NewConflictStore(s repo.Store) *ConflictStore { return &ConflictStore{Store: s} }

// Attempts conta as execuções de fn, incluindo as abortadas.
func (s *ConflictStore) Attempts() int { return int(s.attempts.Load()) }

func (s *ConflictStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		first := attempt == 0
		err = s.Store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
			s.attempts.Add(1)
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if first {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		if err == nil || !repo.Retryable(err) {
			return err
		}
	}
	return err
}
