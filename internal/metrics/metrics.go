package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModeSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_mode_switches_total",
			Help: "Total number of mode transitions by target mode",
		},
		[]string{"target"},
	)

	CurrentMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cortexvoice_current_mode",
			Help: "Current mode (0=idle, 1=online, 2=offline)",
		},
	)

	SessionStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_session_starts_total",
			Help: "Total number of session starts by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	ConnectivityProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_connectivity_probes_total",
			Help: "Total number of connectivity probes by result",
		},
		[]string{"result"},
	)

	RemindersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortexvoice_reminders_created_total",
			Help: "Total number of reminders created",
		},
	)

	RemindersFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortexvoice_reminders_fired_total",
			Help: "Total number of reminders fired",
		},
	)

	RemindersDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortexvoice_reminders_deleted_total",
			Help: "Total number of reminders deleted by a user command",
		},
	)

	ActiveReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cortexvoice_active_reminders",
			Help: "Number of active scheduled reminders",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortexvoice_persist_failures_total",
			Help: "Total number of reminder file write failures",
		},
	)
)
