package domain

import "time"

// CaseType classifies an intake case.
type CaseType string

const (
	CaseEmergency CaseType = "emergency"
	CaseFound     CaseType = "found"
	CaseLost      CaseType = "lost"
	CaseSurrender CaseType = "surrender"
	CaseGeneral   CaseType = "general"
)

// CaseStatus tracks a case through its lifecycle.
type CaseStatus string

const (
	CaseSubmitted  CaseStatus = "submitted"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
	CaseClosed     CaseStatus = "closed"
	CaseCancelled  CaseStatus = "cancelled"
)

// CaseRecord is the business record created once an intake is confirmed.
type CaseRecord struct {
	ID              string         `json:"id"`
	Type            CaseType       `json:"case_type"`
	AnimalType      string         `json:"animal_type"`
	Location        string         `json:"location,omitempty"`
	ReporterName    string         `json:"reporter_name,omitempty"`
	ReporterContact string         `json:"reporter_contact,omitempty"`
	Description     string         `json:"description,omitempty"`
	Status          CaseStatus     `json:"status"`
	Appointment     *time.Time     `json:"appointment,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CaseTypeForState maps an intake state to the case type it produces.
func CaseTypeForState(state string) CaseType {
	switch state {
	case StateEmergencyCase:
		return CaseEmergency
	case StateReportFound:
		return CaseFound
	case StateReportLost:
		return CaseLost
	case StatePetSurrender, StateScheduleSurrender:
		return CaseSurrender
	default:
		return CaseGeneral
	}
}

// Slot is an appointment window offered by the case store.
type Slot struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}
