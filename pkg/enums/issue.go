package enums

import "fmt"

// IssueStatus is the workflow state of a tracked issue.
type IssueStatus string

const (
	IssueStatusTriage     IssueStatus = "triage"
	IssueStatusBacklog    IssueStatus = "backlog"
	IssueStatusDeclined   IssueStatus = "declined"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusDone       IssueStatus = "done"
)

var validIssueStatuses = []IssueStatus{
	IssueStatusTriage,
	IssueStatusBacklog,
	IssueStatusDeclined,
	IssueStatusInProgress,
	IssueStatusDone,
}

func (s IssueStatus) String() string {
	return string(s)
}

func (s IssueStatus) IsValid() bool {
	for _, candidate := range validIssueStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseIssueStatus(value string) (IssueStatus, error) {
	for _, candidate := range validIssueStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue status %q", value)
}

// IssueSource records where an issue was materialized from.
type IssueSource string

const (
	IssueSourceTeams IssueSource = "teams"
	IssueSourceSlack IssueSource = "slack"
	IssueSourceWeb   IssueSource = "web"
)

func (s IssueSource) String() string {
	return string(s)
}

func (s IssueSource) IsValid() bool {
	switch s {
	case IssueSourceTeams, IssueSourceSlack, IssueSourceWeb:
		return true
	}
	return false
}

// TriageDecision is an admin's verdict on an issue waiting in triage.
type TriageDecision string

const (
	TriageDecisionAccept  TriageDecision = "accept"
	TriageDecisionDecline TriageDecision = "decline"
)

func (d TriageDecision) IsValid() bool {
	return d == TriageDecisionAccept || d == TriageDecisionDecline
}

// TargetStatus returns the status an issue in triage moves to for the decision.
func (d TriageDecision) TargetStatus() IssueStatus {
	if d == TriageDecisionAccept {
		return IssueStatusBacklog
	}
	return IssueStatusDeclined
}

func ParseTriageDecision(value string) (TriageDecision, error) {
	d := TriageDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid triage decision %q", value)
	}
	return d, nil
}
