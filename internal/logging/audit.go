// Package logging also provides audit logging that outputs Mangle-queryable
// facts. Audit logs are structured events that can be parsed into Mangle
// predicates for declarative querying of pipeline history (e.g. "which
// component was READY for domain X at time T").
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event (maps to a Mangle predicate).
type AuditEventType string

const (
	// Pipeline request lifecycle -> request_event/5
	AuditRequestStart    AuditEventType = "request_start"
	AuditRequestComplete AuditEventType = "request_complete"
	AuditRequestTimeout  AuditEventType = "request_timeout"

	// Stage lifecycle -> stage_event/5
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditStageDeadline AuditEventType = "stage_deadline_exceeded"

	// Component slot lifecycle -> slot_event/5
	AuditSlotRegister AuditEventType = "slot_register"
	AuditSlotReady    AuditEventType = "slot_ready"
	AuditSlotDraining AuditEventType = "slot_draining"
	AuditSlotRetired  AuditEventType = "slot_retired"
	AuditSlotSwap     AuditEventType = "slot_swap"

	// Trust decisions -> trust_event/4
	AuditTrustAllowed  AuditEventType = "trust_allowed"
	AuditTrustRejected AuditEventType = "trust_rejected"

	// Cache tier transitions -> cache_event/4
	AuditCacheHit  AuditEventType = "cache_hit"
	AuditCacheMiss AuditEventType = "cache_miss"

	// Optimizer recommendations -> optimizer_event/5
	AuditOptimizerRecommend AuditEventType = "optimizer_recommend"
	AuditOptimizerTrial     AuditEventType = "optimizer_trial"

	// Generic error events -> error_event/4
	AuditErrorGeneric AuditEventType = "error_generic"
)

// AuditEvent is a structured audit log entry that can be parsed to Mangle.
// Format: predicate(timestamp, category, ...args)
type AuditEvent struct {
	Timestamp   int64                  `json:"ts"`
	EventType   AuditEventType         `json:"event"`
	Category    string                 `json:"cat"`
	RequestID   string                 `json:"req"`
	ComponentID string                 `json:"component"`
	Target      string                 `json:"target"`
	Action      string                 `json:"action"`
	Success     bool                   `json:"success"`
	DurationMs  int64                  `json:"dur_ms"`
	Error       string                 `json:"error"`
	Message     string                 `json:"msg"`
	Fields      map[string]interface{} `json:"fields"`
	MangleFact  string                 `json:"mangle"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact generation.
type AuditLogger struct {
	requestID string
	category  Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest creates an audit logger scoped to one pipeline request.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditRequestStart, AuditRequestComplete, AuditRequestTimeout:
		return fmt.Sprintf("request_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.RequestID, e.Success, e.DurationMs)

	case AuditStageStart, AuditStageComplete, AuditStageDeadline:
		return fmt.Sprintf("stage_event(%d, /%s, \"%s\", \"%s\", %d).",
			e.Timestamp, e.EventType, e.RequestID, e.Target, e.DurationMs)

	case AuditSlotRegister, AuditSlotReady, AuditSlotDraining, AuditSlotRetired, AuditSlotSwap:
		return fmt.Sprintf("slot_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.ComponentID, e.Target, e.Success)

	case AuditTrustAllowed, AuditTrustRejected:
		return fmt.Sprintf("trust_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.ComponentID, e.Target)

	case AuditCacheHit, AuditCacheMiss:
		return fmt.Sprintf("cache_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Target, e.Action)

	case AuditOptimizerRecommend, AuditOptimizerTrial:
		return fmt.Sprintf("optimizer_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.ComponentID, e.Target, e.Success)

	case AuditErrorGeneric:
		return fmt.Sprintf("error_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON PIPELINE EVENTS
// =============================================================================

// RequestComplete logs the end of a Process() call.
func (a *AuditLogger) RequestComplete(requestID string, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditRequestComplete,
		RequestID:  requestID,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("request %s completed (success=%v, %dms)", requestID, success, durationMs),
	})
}

// StageComplete logs a stage's completion, used to populate PerformanceSample.
func (a *AuditLogger) StageComplete(requestID, stage string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditStageComplete,
		RequestID:  requestID,
		Target:     stage,
		Success:    true,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("stage %s completed in %dms", stage, durationMs),
	})
}

// StageDeadlineExceeded logs a stage returning its partial result early.
func (a *AuditLogger) StageDeadlineExceeded(requestID, stage string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditStageDeadline,
		RequestID:  requestID,
		Target:     stage,
		Success:    false,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("stage %s exceeded its sub-deadline after %dms", stage, durationMs),
	})
}

// SlotSwap logs a hot-swap promotion.
func (a *AuditLogger) SlotSwap(componentID, kind string, success bool) {
	a.Log(AuditEvent{
		EventType:   AuditSlotSwap,
		ComponentID: componentID,
		Target:      kind,
		Success:     success,
		Message:     fmt.Sprintf("swap of %s/%s success=%v", kind, componentID, success),
	})
}

// TrustDecision logs a registration-time trust decision.
func (a *AuditLogger) TrustDecision(componentID, trustLevel string, allowed bool) {
	eventType := AuditTrustAllowed
	if !allowed {
		eventType = AuditTrustRejected
	}
	a.Log(AuditEvent{
		EventType:   eventType,
		ComponentID: componentID,
		Target:      trustLevel,
		Success:     allowed,
		Message:     fmt.Sprintf("trust decision for %s: level=%s allowed=%v", componentID, trustLevel, allowed),
	})
}

// CacheLookup logs a cache tier hit or miss.
func (a *AuditLogger) CacheLookup(key, tier string, hit bool) {
	eventType := AuditCacheMiss
	if hit {
		eventType = AuditCacheHit
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    key,
		Action:    tier,
		Success:   hit,
	})
}

// OptimizerRecommend logs a self-optimizer swap recommendation.
func (a *AuditLogger) OptimizerRecommend(componentID, domain string) {
	a.Log(AuditEvent{
		EventType:   AuditOptimizerRecommend,
		ComponentID: componentID,
		Target:      domain,
		Success:     true,
		Message:     fmt.Sprintf("optimizer recommends %s for domain %s", componentID, domain),
	})
}

// Error logs a generic error event.
func (a *AuditLogger) Error(category Category, err error) {
	a.Log(AuditEvent{
		EventType: AuditErrorGeneric,
		Category:  string(category),
		Error:     err.Error(),
		Success:   false,
	})
}
