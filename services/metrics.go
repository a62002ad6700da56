package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cppla/taskquest/models"
)

var (
	// pointsPosted counts points moved through the ledger.
	// Labels: type (transaction type), direction (credit, debit)
	pointsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "ledger",
		Name:      "points_total",
		Help:      "Points posted to the ledger",
	}, []string{"type", "direction"})

	transactionsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Ledger entries appended",
	}, []string{"type"})

	// unlocks counts achievement and badge grants.
	// Labels: kind (achievement, badge)
	unlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "gamification",
		Name:      "unlocks_total",
		Help:      "Achievements and badges unlocked",
	}, []string{"kind"})

	redemptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "gamification",
		Name:      "redemptions_total",
		Help:      "Rewards redeemed",
	})

	// challengeTransitions counts enrollments reaching a terminal state.
	// Labels: status (completed, expired)
	challengeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "gamification",
		Name:      "challenge_transitions_total",
		Help:      "Challenge enrollments completed or expired",
	}, []string{"status"})

	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskquest",
		Subsystem: "gamification",
		Name:      "events_total",
		Help:      "Ingested activity events",
	}, []string{"trigger"})
)

func observeTransaction(t *models.PointTransaction) {
	typ := string(t.TransactionType)
	transactionsPosted.WithLabelValues(typ).Inc()
	if t.Points >= 0 {
		pointsPosted.WithLabelValues(typ, "credit").Add(float64(t.Points))
		return
	}
	pointsPosted.WithLabelValues(typ, "debit").Add(float64(-t.Points))
}

func observeUnlock(kind string) {
	unlocks.WithLabelValues(kind).Inc()
}

func observeRedemption() {
	redemptions.Inc()
}

func observeChallengeCompleted() {
	challengeTransitions.WithLabelValues(string(models.ChallengeCompleted)).Inc()
}

func observeChallengesExpired(n int64) {
	challengeTransitions.WithLabelValues(string(models.ChallengeExpired)).Add(float64(n))
}

func observeEvent(trigger string) {
	events.WithLabelValues(trigger).Inc()
}
