// Package security vets commands before they reach the executor. A
// policy classifies each command line as allowed, needing approval, or
// denied outright.
package security

import (
	"regexp"
	"strings"
)

// Decision is the outcome of vetting a command.
type Decision string

// Vetting outcomes.
const (
	// DecisionAllowed permits immediate execution.
	DecisionAllowed Decision = "allowed"
	// DecisionNeedsApproval requires explicit user approval first.
	DecisionNeedsApproval Decision = "needs_approval"
	// DecisionDenied blocks execution unconditionally.
	DecisionDenied Decision = "denied"
)

// Verdict pairs a decision with the rule that produced it.
type Verdict struct {
	Decision Decision `json:"decision"`
	// Reason names the matched rule for denied and approval verdicts.
	Reason string `json:"reason,omitempty"`
}

// Allowed reports whether the command may run without further input.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllowed
}

// builtinDenylist matches command lines that are destructive enough to
// block outright regardless of configuration.
var builtinDenylist = []*regexp.Regexp{
	regexp.MustCompile(`(^|\s)rm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)[a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`(^|\s)mkfs(\.\w+)?\s`),
	regexp.MustCompile(`(^|\s)dd\s+.*of=/dev/(sd|hd|nvme|vd)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	regexp.MustCompile(`(^|\s)(shutdown|reboot|halt|poweroff)(\s|$)`),
	regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd)`),
	regexp.MustCompile(`(^|\s)chmod\s+(-[a-zA-Z]+\s+)?777\s+/(\s|$)`),
}

// approvalPatterns match commands that are risky but legitimate, such as
// package removal or piping remote scripts into a shell.
var approvalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(curl|wget)\s[^|]*\|\s*(ba|z|da|k)?sh`),
	regexp.MustCompile(`(^|\s)rm\s+-[a-zA-Z]*r`),
	regexp.MustCompile(`(^|\s)(apt|apt-get|yum|dnf|pacman|brew)\s+(remove|purge|uninstall)`),
	regexp.MustCompile(`(^|\s)git\s+push\s+.*--force`),
	regexp.MustCompile(`(^|\s)docker\s+(system\s+prune|rmi)`),
	regexp.MustCompile(`(^|\s)kill\s+-9\s+1(\s|$)`),
}

// elevationPrefixes mark a command as requesting elevated privileges.
var elevationPrefixes = []string{"sudo", "doas", "runas"}

// Policy vets command lines against the denylist and elevation rules.
type Policy struct {
	approvalRequired bool
	allowElevated    bool
	extraDeny        []*regexp.Regexp
}

// Options configures a Policy.
type Options struct {
	// ApprovalRequired enables the needs_approval tier. When false,
	// commands that would need approval are allowed instead; denied
	// commands stay denied.
	ApprovalRequired bool
	// AllowElevated permits elevated commands, subject to approval.
	// When false every elevated command is denied.
	AllowElevated bool
	// DenyPatterns adds user-configured regular expressions to the
	// denylist. Invalid patterns are reported by NewPolicy.
	DenyPatterns []string
}

// NewPolicy builds a Policy from options. An invalid deny pattern makes
// construction fail rather than silently dropping a rule.
func NewPolicy(opts Options) (*Policy, error) {
	p := &Policy{
		approvalRequired: opts.ApprovalRequired,
		allowElevated:    opts.AllowElevated,
	}
	for _, pattern := range opts.DenyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.extraDeny = append(p.extraDeny, re)
	}
	return p, nil
}

// Vet classifies a command line. The elevated flag covers both an
// explicit request and a detected elevation prefix in the line itself.
func (p *Policy) Vet(commandLine string, elevated bool) Verdict {
	line := strings.TrimSpace(commandLine)
	if line == "" {
		return Verdict{Decision: DecisionDenied, Reason: "empty command"}
	}

	for _, re := range builtinDenylist {
		if re.MatchString(line) {
			return Verdict{Decision: DecisionDenied, Reason: "destructive command: " + re.String()}
		}
	}
	for _, re := range p.extraDeny {
		if re.MatchString(line) {
			return Verdict{Decision: DecisionDenied, Reason: "denied by policy: " + re.String()}
		}
	}

	if elevated || IsElevated(line) {
		if !p.allowElevated {
			return Verdict{Decision: DecisionDenied, Reason: "elevated execution is disabled"}
		}
		if p.approvalRequired {
			return Verdict{Decision: DecisionNeedsApproval, Reason: "elevated command"}
		}
	}

	if p.approvalRequired {
		for _, re := range approvalPatterns {
			if re.MatchString(line) {
				return Verdict{Decision: DecisionNeedsApproval, Reason: "risky command: " + re.String()}
			}
		}
	}

	return Verdict{Decision: DecisionAllowed}
}

// IsElevated reports whether a command line starts with an elevation
// prefix like sudo.
func IsElevated(commandLine string) bool {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(fields[0])
	for _, prefix := range elevationPrefixes {
		if first == prefix {
			return true
		}
	}
	return false
}
