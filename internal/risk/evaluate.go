package risk

import "github.com/harborwallet/walletkit-backend/internal/chains"

const (
	blockedMessage = "Simulation flagged this transaction as dangerous."
	warnMessage    = "Simulation raised concerns about this transaction."
)

// severityRank orders warnings for selection; higher wins.
var severityRank = map[chains.Severity]int{
	chains.SeverityInfo:     1,
	chains.SeverityWarning:  2,
	chains.SeverityCritical: 3,
}

// Evaluate reduces the preparer's risk output to the single warning shown at
// approval time, or nil when there is nothing to surface. A blocking
// preventative action always escalates to critical, regardless of what the
// individual warnings say.
func Evaluate(action chains.PreventativeAction, warnings []chains.Warning) *chains.Warning {
	selected := mostSevere(warnings)

	switch action {
	case chains.ActionBlock:
		message := blockedMessage
		if selected != nil {
			message = selected.Message
		}
		return &chains.Warning{Severity: chains.SeverityCritical, Message: message}

	case chains.ActionWarn:
		if selected != nil {
			return selected
		}
		return &chains.Warning{Severity: chains.SeverityWarning, Message: warnMessage}

	default:
		return selected
	}
}

func mostSevere(warnings []chains.Warning) *chains.Warning {
	var best *chains.Warning
	for i := range warnings {
		w := warnings[i]
		if best == nil || severityRank[w.Severity] > severityRank[best.Severity] {
			best = &w
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}
