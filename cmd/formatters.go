package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"vigil/core"
	"vigil/correlate"
	"vigil/service"
)

// outputAsJSON prints v as indented JSON to stdout.
func outputAsJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReplayReport displays a successful replay verification.
func renderReplayReport(report *service.ReplayReport) {
	headerColor.Println("REPLAY VERIFICATION")
	headerColor.Println(strings.Repeat("=", 72))
	fmt.Printf("  Incident:    %s\n", report.IncidentID)
	fmt.Printf("  Events:      %d\n", report.EventCount)
	fmt.Printf("  Final seq:   %d\n", report.FinalSeq)
	fmt.Printf("  Final hash:  %s\n", report.FinalHash)
	fmt.Printf("  Final state: %s\n", report.FinalState.Status)
	fmt.Println(strings.Repeat("-", 72))
	successColor.Println("  VERIFIED: replayed state matches the live incident")
	fmt.Println(strings.Repeat("=", 72))
}

// renderIntegrityViolation displays a failed replay verification.
func renderIntegrityViolation(iv *core.IntegrityViolation) {
	headerColor.Println("REPLAY VERIFICATION")
	headerColor.Println(strings.Repeat("=", 72))
	errorColor.Printf("  VIOLATION: %s\n", iv.Code)
	fmt.Printf("  Incident:  %s\n", iv.IncidentID)
	if iv.EventSeq > 0 {
		fmt.Printf("  Event seq: %d\n", iv.EventSeq)
	}
	fmt.Printf("  Detail:    %s\n", iv.Message)
	fmt.Println(strings.Repeat("=", 72))
}

// renderRulesTable displays loaded correlation rules.
func renderRulesTable(ruleSet *correlate.RuleSet) {
	rules := ruleSet.EnabledRules()
	if len(rules) == 0 {
		warningColor.Println("No enabled rules")
		return
	}

	headerColor.Println("CORRELATION RULES")
	headerColor.Println(strings.Repeat("=", 96))
	fmt.Printf("%-24s %-10s %-32s %-10s %-8s %-10s\n",
		"ID", "Version", "Name", "Severity", "Signals", "Window")
	fmt.Println(strings.Repeat("-", 96))

	for _, rule := range rules {
		name := rule.Name
		if len(name) > 31 {
			name = name[:28] + "..."
		}
		fmt.Printf("%-24s %-10s %-32s %-10s %-8d %-10s\n",
			rule.RuleID, rule.RuleVersion, name, rule.Severity,
			rule.Threshold.MinSignals, rule.TimeWindow.Duration)
	}
	fmt.Println(strings.Repeat("=", 96))
}

// renderIncidentsTable displays incidents in a formatted table.
func renderIncidentsTable(incidents []core.Incident, total int64) {
	if len(incidents) == 0 {
		warningColor.Println("No incidents")
		return
	}

	headerColor.Println("INCIDENTS")
	headerColor.Println(strings.Repeat("=", 104))
	fmt.Printf("%-18s %-12s %-20s %-10s %-32s %-8s\n",
		"ID", "Status", "Service", "Severity", "Title", "Signals")
	fmt.Println(strings.Repeat("-", 104))

	for _, inc := range incidents {
		shortID := inc.IncidentID
		if len(shortID) > 16 {
			shortID = shortID[:16]
		}
		title := inc.Title
		if len(title) > 31 {
			title = title[:28] + "..."
		}
		fmt.Printf("%-18s %-12s %-20s %-10s %-32s %-8d\n",
			shortID, inc.Status, inc.Service, inc.Severity, title, len(inc.SignalIDs))
	}
	fmt.Println(strings.Repeat("=", 104))
	fmt.Printf("Showing %d of %d incidents\n", len(incidents), total)
}

// renderIncidentDetail displays one incident.
func renderIncidentDetail(inc *core.Incident) {
	headerColor.Printf("INCIDENT %s\n", inc.IncidentID)
	headerColor.Println(strings.Repeat("=", 72))
	fmt.Printf("  Status:    %s\n", inc.Status)
	fmt.Printf("  Service:   %s\n", inc.Service)
	fmt.Printf("  Severity:  %s\n", inc.Severity)
	fmt.Printf("  Title:     %s\n", inc.Title)
	fmt.Printf("  Candidate: %s\n", inc.CandidateID)
	fmt.Printf("  Evidence:  %s\n", inc.EvidenceID)
	fmt.Printf("  Signals:   %d\n", len(inc.SignalIDs))
	fmt.Printf("  Created:   %s\n", inc.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Version:   %d\n", inc.IncidentVersion)
	if inc.Approval != nil {
		fmt.Printf("  Approval:  %s by %s\n", inc.Approval.State, inc.Approval.By)
	}
	if inc.ResolutionSummary != "" {
		fmt.Printf("  Resolved:  %s (%s) by %s\n", inc.ResolutionSummary, inc.ResolutionType, inc.ResolvedBy)
	}
	fmt.Println(strings.Repeat("=", 72))
}

// renderEventsTable displays an incident's event log.
func renderEventsTable(events []core.EventRecord) {
	headerColor.Println("EVENT LOG")
	headerColor.Println(strings.Repeat("=", 88))
	fmt.Printf("%-5s %-18s %-24s %-24s %-12s\n", "Seq", "Type", "Actor", "Occurred", "Hash")
	fmt.Println(strings.Repeat("-", 88))

	for _, rec := range events {
		hash := rec.StateHashAfter
		if len(hash) > 10 {
			hash = hash[:10]
		}
		fmt.Printf("%-5d %-18s %-24s %-24s %-12s\n",
			rec.EventSeq, rec.EventType, rec.Actor,
			rec.OccurredAt.Format(time.RFC3339), hash)
	}
	fmt.Println(strings.Repeat("=", 88))
}
