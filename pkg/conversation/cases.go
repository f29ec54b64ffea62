package conversation

import (
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// BuildCase assembles the case record described by the conversation context.
func BuildCase(view domain.View, now time.Time) domain.CaseRecord {
	details := map[string]any{}
	if v, ok := view.Get(domain.FieldCaseDetails); ok {
		if m, ok := v.(map[string]any); ok {
			details = domain.CopyMap(m)
		}
	}

	rec := domain.CaseRecord{
		Type:            caseType(view, details),
		AnimalType:      first(view, domain.FieldAnimalType),
		Location:        first(view, domain.FieldLocation, domain.FieldLocationFound, domain.FieldLastSeenLocation),
		ReporterName:    first(view, domain.FieldOwnerName),
		ReporterContact: first(view, domain.FieldOwnerContact, domain.FieldOwnerPhone, "phone_number", "email", "contact_info"),
		Description:     first(view, domain.FieldAnimalDescription, "animal_color", "breed"),
		Status:          domain.CaseSubmitted,
		Details:         details,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	if at, ok := ParseAppointment(view.GetString(domain.FieldSelectedDate)); ok {
		rec.Appointment = &at
	}
	for _, k := range view.Keys() {
		if domain.InternalKeys[k] || k == domain.FieldCaseDetails {
			continue
		}
		if _, exists := details[k]; exists {
			continue
		}
		if v, _ := view.Get(k); domain.IsPresent(v) {
			details[k] = v
		}
	}
	return rec
}

func caseType(view domain.View, details map[string]any) domain.CaseType {
	if t, ok := details["type"].(string); ok && t != "" {
		return domain.CaseType(t)
	}
	for _, key := range []string{domain.FieldDetectedIntent, domain.FieldServiceType} {
		switch t := domain.CaseType(view.GetString(key)); t {
		case domain.CaseEmergency, domain.CaseFound, domain.CaseLost, domain.CaseSurrender:
			return t
		}
	}
	return domain.CaseGeneral
}

func first(view domain.View, keys ...string) string {
	for _, k := range keys {
		if s := view.GetString(k); s != "" {
			return s
		}
	}
	return ""
}
