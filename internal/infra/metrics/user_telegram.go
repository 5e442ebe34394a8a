package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		telegramEditsTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	telegramEditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_status_edits_total",
			Help: "Status message edits sent to Telegram, labeled by result.",
		},
		[]string{"result"}, // 'ok', 'error'
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncStatusEdit(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	telegramEditsTotal.WithLabelValues(result).Inc()
}
