package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// Severity separates expected outcomes from faults when reporting.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Presentation describes how an error surfaces to the user. The wire response
// never carries this; only the local UI and logs do.
type Presentation struct {
	Severity Severity `json:"severity"`
	Icon     string   `json:"icon,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Generic is the presentation for technical failures with no dedicated UI.
func Generic() Presentation {
	return Presentation{Severity: SeverityError}
}

// Expected marks an anticipated outcome (like a user declining) that should
// not alarm anyone.
func Expected(icon, message string) Presentation {
	return Presentation{Severity: SeverityWarning, Icon: icon, Message: message}
}

// ErrorContext identifies where in the pipeline an error was observed. It is
// passed explicitly; there are no free-text context tags.
type ErrorContext struct {
	Flow      string `json:"flow"`
	Topic     string `json:"topic,omitempty"`
	RequestID int64  `json:"requestId,omitempty"`
	Network   string `json:"network,omitempty"`
}

// Reporter receives categorized errors for logging and alerting.
type Reporter interface {
	Report(ctx context.Context, err error, ec ErrorContext, p Presentation)
}

// ZapReporter writes reports to the process logger.
type ZapReporter struct {
	logger *zap.SugaredLogger
}

func NewZapReporter(logger *zap.SugaredLogger) *ZapReporter {
	return &ZapReporter{logger: logger}
}

func (r *ZapReporter) Report(ctx context.Context, err error, ec ErrorContext, p Presentation) {
	fields := []interface{}{
		"error", err,
		"flow", ec.Flow,
		"topic", ec.Topic,
		"requestId", ec.RequestID,
		"network", ec.Network,
	}
	if p.Message != "" {
		fields = append(fields, "userMessage", p.Message)
	}

	switch p.Severity {
	case SeverityInfo:
		r.logger.Infow("Pipeline report", fields...)
	case SeverityWarning:
		r.logger.Warnw("Pipeline report", fields...)
	default:
		r.logger.Errorw("Pipeline report", fields...)
	}
}
