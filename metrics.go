package authcore

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginThrottled
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRegisterThrottled
	MetricPasswordResetRequest
	MetricPasswordResetRedeemSuccess
	MetricPasswordResetRedeemFailure
	MetricEmailVerifySuccess
	MetricEmailVerifyFailure
	MetricResendVerification
	MetricRateLimitHit
	MetricTokenSweepCleared
	MetricSessionIssued
	MetricSessionRejected

	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:               "login_success",
	MetricLoginFailure:               "login_failure",
	MetricLoginThrottled:             "login_throttled",
	MetricRegisterSuccess:            "register_success",
	MetricRegisterDuplicate:          "register_duplicate",
	MetricRegisterThrottled:          "register_throttled",
	MetricPasswordResetRequest:       "password_reset_request",
	MetricPasswordResetRedeemSuccess: "password_reset_redeem_success",
	MetricPasswordResetRedeemFailure: "password_reset_redeem_failure",
	MetricEmailVerifySuccess:         "email_verify_success",
	MetricEmailVerifyFailure:         "email_verify_failure",
	MetricResendVerification:         "resend_verification",
	MetricRateLimitHit:               "rate_limit_hit",
	MetricTokenSweepCleared:          "token_sweep_cleared",
	MetricSessionIssued:              "session_issued",
	MetricSessionRejected:            "session_rejected",
}

// MetricsSnapshot is a point-in-time copy of every counter, keyed by
// metric name.
type MetricsSnapshot struct {
	Counters map[string]uint64
}

type engineMetrics struct {
	counters [metricCount]atomic.Uint64
}

func (m *engineMetrics) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *engineMetrics) add(id MetricID, delta uint64) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(delta)
}

func (m *engineMetrics) snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[string]uint64, metricCount)}
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out.Counters[metricNames[id]] = m.counters[id].Load()
	}
	return out
}
