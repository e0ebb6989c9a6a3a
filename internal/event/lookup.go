package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// EventData é a partida como o provedor de dados esportivos a descreve.
type EventData struct {
	ExternalID  string    `json:"id"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"` // scheduled | live | finished
	HomeScore   *int      `json:"home_score,omitempty"`
	AwayScore   *int      `json:"away_score,omitempty"`
}

// SportsDataLookup consulta o provedor externo. Somente leitura.
type SportsDataLookup interface {
	FindEvent(ctx context.Context, externalID string) (*EventData, error)
}

var ErrUnknownEvent = errors.New("event unknown to provider")

// HTTPLookup chama GET {base}/events/{id} respeitando um limite de
// requisições por segundo, com timeout por chamada e circuit breaker.
type HTTPLookup struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

func NewHTTPLookup(baseURL string, timeout time.Duration, rps float64) *HTTPLookup {
	if rps <= 0 {
		rps = 5
	}
	st := gobreaker.Settings{Name: "sports-data", Timeout: 30 * time.Second}
	st.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 }
	// 404 é resposta válida do provedor, não conta como falha
	st.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ErrUnknownEvent) }
	return &HTTPLookup{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

func (l *HTTPLookup) FindEvent(ctx context.Context, externalID string) (*EventData, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := l.cb.Execute(func() (interface{}, error) { return l.get(ctx, externalID) })
	if err != nil {
		return nil, err
	}
	return v.(*EventData), nil
}

func (l *HTTPLookup) get(ctx context.Context, externalID string) (*EventData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/events/"+url.PathEscape(externalID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnknownEvent
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("sports data http %s", resp.Status)
	}
	var out EventData
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sports data: %w", err)
	}
	if out.ExternalID == "" {
		out.ExternalID = externalID
	}
	return &out, nil
}
