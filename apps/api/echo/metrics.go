package echoapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// loginsTotal counts login attempts by outcome (success, failure).
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_auth_logins_total",
			Help: "Total number of login attempts by result.",
		},
		[]string{"result"},
	)

	// sessionResolutionsTotal counts session token lookups by outcome (valid, rejected).
	sessionResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_auth_session_resolutions_total",
			Help: "Total number of session token resolutions by result.",
		},
		[]string{"result"},
	)

	registrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_auth_registrations_total",
			Help: "Total number of student self-registrations.",
		},
	)

	documentUploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_document_uploads_total",
			Help: "Total number of documents uploaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(loginsTotal, sessionResolutionsTotal, registrationsTotal, documentUploadsTotal)
}
