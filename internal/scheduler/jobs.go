package scheduler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sweeps reúne as varreduras dos engines.
type Sweeps struct {
	WagerExpiredPending SweepFunc
	PoolOpenDue         SweepFunc
	PoolCloseExpired    SweepFunc
	PoolFinalize        SweepFunc
	EventCloseWindows   SweepFunc
}

type Intervals struct {
	Wager  time.Duration
	Pool   time.Duration
	Window time.Duration
}

// DefaultJobs monta os jobs padrão; varreduras nil ficam de fora.
func DefaultJobs(s Sweeps, iv Intervals) []Job {
	all := []Job{
		{Name: JobWagerExpiredPending, Interval: iv.Wager, Run: s.WagerExpiredPending},
		{Name: JobPoolOpenDue, Interval: iv.Pool, Run: s.PoolOpenDue},
		{Name: JobPoolCloseExpired, Interval: iv.Pool, Run: s.PoolCloseExpired},
		{Name: JobPoolFinalize, Interval: iv.Pool, Run: s.PoolFinalize},
		{Name: JobEventCloseWindows, Interval: iv.Window, Run: s.EventCloseWindows},
	}
	out := all[:0]
	for _, j := range all {
		if j.Run != nil {
			out = append(out, j)
		}
	}
	return out
}

// Overrides é o formato do arquivo SCHEDULER_CONFIG:
//
//	jobs:
//	  pool-finalize-eligible:
//	    interval: 2m
//	  wager-expired-pending:
//	    enabled: false
type Overrides struct {
	Jobs map[string]JobOverride `yaml:"jobs"`
}

type JobOverride struct {
	Interval string `yaml:"interval"`
	Enabled  *bool  `yaml:"enabled"`
}

// LoadOverrides lê o YAML; caminho vazio não sobrescreve nada.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	if path == "" {
		return o, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read scheduler config: %w", err)
	}
	if err := yaml.Unmarshal(b, &o); err != nil {
		return o, fmt.Errorf("parse scheduler config: %w", err)
	}
	return o, nil
}

// Apply devolve os jobs com intervalos ajustados. enabled: false zera o
// intervalo: o job continua disponível para RunOnce.
func (o Overrides) Apply(jobs []Job) ([]Job, error) {
	known := make(map[string]bool, len(jobs))
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		known[j.Name] = true
		ov, ok := o.Jobs[j.Name]
		if ok && ov.Interval != "" {
			d, err := time.ParseDuration(ov.Interval)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("job %s: invalid interval %q", j.Name, ov.Interval)
			}
			j.Interval = d
		}
		if ok && ov.Enabled != nil && !*ov.Enabled {
			j.Interval = 0
		}
		out[i] = j
	}
	for name := range o.Jobs {
		if !known[name] {
			return nil, fmt.Errorf("unknown job %q in scheduler config", name)
		}
	}
	return out, nil
}
