package topics

const (
	// Notificações de domínio (aposta liquidada, bolão finalizado, depósito confirmado...)
	LedgerNotifications = "ledger_notifications"

	// Callbacks de confirmação vindos da rede (simulada ou real)
	ChainConfirmations = "chain_confirmations"

	// DLQs
	ChainConfirmationsDLQ = "chain_confirmations_dlq"
)

// Canal Redis pub/sub usado pelo hub websocket.
const LedgerNotificationsChannel = "ledger_notifications_broadcast"
