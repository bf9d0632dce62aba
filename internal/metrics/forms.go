package metrics

import (
	"time"

	"github.com/formscout/formscout/internal/observability"
)

// Form lookup metrics
const (
	LookupsTotal           = "lookups_total"
	LookupDuration         = "lookup_duration_ms"
	StrategyAttemptsTotal  = "strategy_attempts_total"
	RateLimitDenialsTotal  = "rate_limit_denials_total"
	LinkValidationsTotal   = "link_validations_total"
	CacheLookupsTotal      = "cache_lookups_total"
	AdvisorRequestsTotal   = "advisor_requests_total"
	AdvisorRequestDuration = "advisor_request_duration_ms"
)

// RecordLookup records the outcome of one form resolution.
func RecordLookup(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(LookupsTotal, 1, map[string]string{"outcome": outcome})
	_ = observability.TelemetrySystem.Histogram(LookupDuration, duration, map[string]string{"outcome": outcome})
}

// RecordStrategyAttempt records one discovery strategy attempt.
func RecordStrategyAttempt(strategy string, outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			StrategyAttemptsTotal,
			1,
			map[string]string{
				"strategy": strategy,
				"outcome":  outcome,
			},
		)
	}
}

// RecordRateLimitDenial records a lookup refused by an organization's budget.
func RecordRateLimitDenial(organization string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitDenialsTotal,
			1,
			map[string]string{"organization": organization},
		)
	}
}

// RecordLinkValidation records a HEAD validation result.
func RecordLinkValidation(valid bool) {
	status := "valid"
	if !valid {
		status = "invalid"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(LinkValidationsTotal, 1, map[string]string{"status": status})
	}
}

// RecordCacheLookup records a result cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CacheLookupsTotal, 1, map[string]string{"result": result})
	}
}

// RecordAdvisorRequest records a call to the AI form advisor.
func RecordAdvisorRequest(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		AdvisorRequestsTotal,
		1,
		map[string]string{
			"operation": operation,
			"status":    status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		AdvisorRequestDuration,
		duration,
		map[string]string{"operation": operation},
	)
}
