package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MaxUserIDLength bounds caller identities.
const MaxUserIDLength = 128

var ErrInvalidUserID = errors.New("invalid user id")

// AuditEntry represents a security audit log entry
type AuditEntry struct {
	Timestamp time.Time
	UserID    string
	Operation string
	Resource  string
	IPAddress string
	Success   bool
	Reason    string
}

// AuditLogger records round administration and player eliminations.
type AuditLogger struct {
	logger zerolog.Logger
}

func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With().Str("component", "security_audit").Logger()}
}

// LogAuditEntry logs an audit entry
func (a *AuditLogger) LogAuditEntry(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	event := a.logger.Info().
		Str("operation", entry.Operation).
		Str("resource", entry.Resource).
		Str("user_id", entry.UserID).
		Str("ip_address", entry.IPAddress).
		Bool("success", entry.Success).
		Time("timestamp", entry.Timestamp)

	if entry.Reason != "" {
		event.Str("reason", entry.Reason)
	}
	if entry.Success {
		event.Str("status", "success")
	} else {
		event.Str("status", "failed")
	}
	event.Send()
}

// ValidateUserID accepts printable identities without separators or markup.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUserID, MaxUserIDLength)
	}
	if strings.ContainsAny(id, "<>&\"'\\/ \x00") {
		return fmt.Errorf("%w: contains forbidden characters", ErrInvalidUserID)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: contains control characters", ErrInvalidUserID)
		}
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: contains path patterns", ErrInvalidUserID)
	}
	return nil
}
