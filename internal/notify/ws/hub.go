package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// AccountID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId"`
}

// client serializa escritas na conexão (gorilla não aceita writers concorrentes)
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas de notificações por conta
// subs: mapeia accountID para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
	all      map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
		all:      make(map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Cada cliente pode se inscrever em múltiplas contas
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.mu.Lock()
	h.all[c] = struct{}{}
	h.mu.Unlock()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.AccountID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.AccountID]; !ok {
				h.subs[msg.AccountID] = make(map[*client]struct{})
			}
			h.subs[msg.AccountID][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.unsubscribe(msg.AccountID, c)
		case "ping":
			b, _ := json.Marshal(map[string]string{"type": "pong"})
			_ = c.write(b)
		}
	}

	// Remove o cliente de todas as assinaturas ao desconectar
	h.mu.Lock()
	delete(h.all, c)
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(accountID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[accountID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, accountID)
		}
	}
}

// Broadcast envia a notificação aos inscritos na conta. AccountID vazio vai
// para todas as conexões.
func (h *Hub) Broadcast(n events.Notification) {
	h.mu.RLock()
	set := h.all
	if n.AccountID != "" {
		set = h.subs[n.AccountID]
	}
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, _ := json.Marshal(n)
	for _, c := range targets {
		_ = c.write(b)
	}
}

// Subscribers devolve quantas conexões estão inscritas na conta.
func (h *Hub) Subscribers(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}
