// pkg/validation/result.go
package validation

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// FailingCheck identifies one failed check from a validation run.
type FailingCheck struct {
	Name    string
	Message string
}

// Result is the outcome of one external validation run. It is ephemeral:
// the loop persists only the failure signature and a history entry derived
// from it.
type Result struct {
	Passed        bool
	FailingChecks []FailingCheck
	RawOutput     string
}

// Summary renders a short human-readable description of the result for
// history entries and reports.
func (r Result) Summary() string {
	if r.Passed {
		return "validation passed"
	}
	if len(r.FailingChecks) == 0 {
		return "validation failed"
	}
	names := make([]string, len(r.FailingChecks))
	for i, check := range r.FailingChecks {
		names[i] = check.Name
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// Signature is a stable fingerprint of a failing validation result.
type Signature string

// SignatureNone is the sentinel signature for a passing result.
const SignatureNone Signature = ""

// Compute derives a fingerprint from the ordered failing-check names and
// messages. Raw output never contributes, so timestamps and durations in
// tool noise cannot change the signature. A passing result has no
// signature.
func Compute(r Result) Signature {
	if r.Passed || len(r.FailingChecks) == 0 {
		return SignatureNone
	}
	h := sha256.New()
	for _, check := range r.FailingChecks {
		h.Write([]byte(check.Name))
		h.Write([]byte{0})
		h.Write([]byte(check.Message))
		h.Write([]byte{0})
	}
	return Signature(fmt.Sprintf("%x", h.Sum(nil)))
}
