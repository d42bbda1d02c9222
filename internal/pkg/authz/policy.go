package authz

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/launchpadhq/enrollhub/internal/pkg/env"
)

// Actions checked against the policy.
const (
	ActionApproveEnrollment = "enrollment.approve"
	ActionCancelEnrollment  = "enrollment.cancel"
	ActionAdjustBalance     = "balance.adjust"
	ActionEditContact       = "enrollment.edit_contact"
	ActionViewRecords       = "records.view"
)

// Policy decides whether a principal may perform an action. Injected into
// the admin controllers so the core stays testable without a real user
// directory.
type Policy interface {
	Allow(principal, action string) bool
}

// EnvAllowlistPolicy grants every admin action to principals listed in the
// ADMIN_EMAILS env var (comma separated). The simplest policy that keeps the
// allowlist out of code.
type EnvAllowlistPolicy struct{}

func (EnvAllowlistPolicy) Allow(principal, action string) bool {
	principal = strings.ToLower(strings.TrimSpace(principal))
	if principal == "" {
		return false
	}
	for _, entry := range strings.Split(env.GetEnv("ADMIN_EMAILS", ""), ",") {
		if strings.ToLower(strings.TrimSpace(entry)) == principal {
			return true
		}
	}
	return false
}

// StaticPolicy grants a fixed set of principals every action. Used in tests.
type StaticPolicy struct {
	Principals map[string]bool
}

func (p StaticPolicy) Allow(principal, action string) bool {
	return p.Principals[strings.ToLower(strings.TrimSpace(principal))]
}

// VerifyCronToken compares the scheduled-trigger token against the
// configured credential. The env var holds a bcrypt hash when prefixed with
// "$2", otherwise a plain shared secret compared via bcrypt-free equality on
// the hash path only. Absent configuration fails closed.
func VerifyCronToken(token string) bool {
	configured := strings.TrimSpace(env.GetEnv("CRON_TOKEN", ""))
	token = strings.TrimSpace(token)
	if configured == "" || token == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(token)) == 1
}
