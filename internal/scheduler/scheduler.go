package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

// Nomes dos jobs conhecidos; usados também nas sobrescritas YAML.
const (
	JobWagerExpiredPending = "wager-expired-pending"
	JobPoolOpenDue         = "pool-open-due"
	JobPoolCloseExpired    = "pool-close-expired"
	JobPoolFinalize        = "pool-finalize-eligible"
	JobEventCloseWindows   = "event-close-windows"
)

// SweepFunc é uma varredura idempotente; cada item roda na própria transação.
type SweepFunc func(ctx context.Context) (model.SweepResult, error)

type Job struct {
	Name     string
	Interval time.Duration
	Run      SweepFunc
}

// Scheduler dispara cada job no seu intervalo. Execuções podem se sobrepor:
// a serialização fica por conta das transações de cada entidade.
type Scheduler struct {
	log  *zap.Logger
	jobs map[string]Job

	OnRun func(job string, res model.SweepResult, took time.Duration, err error) // métricas
}

func New(log *zap.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{log: log, jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

// Jobs lista os nomes registrados em ordem alfabética.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start bloqueia até ctx ser cancelado e espera as execuções em andamento.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			s.log.Info("job disabled", zap.String("job", j.Name))
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j, &wg)
		}(j)
	}
	s.log.Info("scheduler started", zap.Strings("jobs", s.Jobs()))
	<-ctx.Done()
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job, wg *sync.WaitGroup) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// não espera a execução anterior terminar
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.run(ctx, j)
			}()
		}
	}
}

// RunOnce executa um job imediatamente; usado pelo ledgerctl.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (model.SweepResult, error) {
	j, ok := s.jobs[name]
	if !ok {
		return model.SweepResult{}, fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, j)
}

// RunAll executa todos os jobs em sequência, mesmo os desabilitados.
func (s *Scheduler) RunAll(ctx context.Context) map[string]model.SweepResult {
	out := make(map[string]model.SweepResult, len(s.jobs))
	for _, name := range s.Jobs() {
		res, _ := s.run(ctx, s.jobs[name])
		out[name] = res
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, j Job) (res model.SweepResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
		took := time.Since(start)
		fields := []zap.Field{
			zap.String("job", j.Name),
			zap.Int("scanned", res.Scanned),
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
			zap.Duration("took", took),
		}
		switch {
		case err != nil:
			s.log.Error("sweep failed", append(fields, zap.Error(err))...)
		case res.Scanned > 0:
			s.log.Info("sweep done", fields...)
		default:
			s.log.Debug("sweep done", fields...)
		}
		if s.OnRun != nil {
			s.OnRun(j.Name, res, took, err)
		}
	}()
	return j.Run(ctx)
}
