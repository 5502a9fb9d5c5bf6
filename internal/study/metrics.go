package study

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// gradesTotal counts graded cards by result
	gradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studynotes_grades_total",
		Help: "Total graded flashcards by result",
	}, []string{"result"})

	// sessionsTotal counts finished study runs by how they ended
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studynotes_sessions_total",
		Help: "Total study sessions by outcome",
	}, []string{"outcome"})

	// sessionCards tracks cards studied per recorded session
	sessionCards = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studynotes_session_cards",
		Help:    "Number of cards studied per recorded session",
		Buckets: []float64{1, 5, 10, 20, 50, 100},
	})

	// generatedCards counts flashcards produced by the generator
	generatedCards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studynotes_generated_flashcards_total",
		Help: "Total flashcards created by the generator",
	})
)

const (
	outcomeCompleted = "completed"
	outcomeFinalized = "finalized"
	outcomeAbandoned = "abandoned"
)
