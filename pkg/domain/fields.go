package domain

// Canonical context field names shared by states, tools and case creation.
const (
	FieldAnimalType          = "animal_type"
	FieldAnimalCondition     = "animal_condition"
	FieldAnimalContained     = "animal_contained"
	FieldAnimalDescription   = "animal_description"
	FieldOwnerContact        = "owner_contact"
	FieldOwnerName           = "owner_name"
	FieldOwnerPhone          = "owner_phone"
	FieldLocation            = "location"
	FieldLocationFound       = "location_found"
	FieldLastSeenLocation    = "last_seen_location"
	FieldIdentifyingFeatures = "identifying_features"
	FieldUrgencyLevel        = "urgency_level"
	FieldDetectedIntent      = "detected_intent"
	FieldServiceType         = "service_type"
	FieldSurrenderReason     = "surrender_reason"
	FieldSelectedDate        = "selected_date"
	FieldParsedDate          = "parsed_date"
	FieldParsedTime          = "parsed_time"
	FieldRelativeTimeRef     = "relative_time_ref"
	FieldTimeFlexibility     = "time_flexibility"
	FieldCaseDetails         = "case_details"
	FieldCaseID              = "case_id"
	FieldCaseType            = "case_type"
	FieldCaseCreatedAt       = "case_created_at"
	FieldMatchingReports     = "matching_reports"
)

// RequestKeys hold the routing and case bookkeeping of one caller request. They
// are cleared whenever the conversation returns to its initial state.
var RequestKeys = []string{
	FieldDetectedIntent, FieldServiceType, FieldCaseDetails,
	FieldCaseID, FieldCaseType, FieldCaseCreatedAt, FieldMatchingReports,
	FieldSelectedDate,
}

// Bookkeeping keys the engine writes itself. They never appear as "known information"
// in prompts.
const (
	KeyMessage             = "message"
	KeyErrorMessage        = "error_message"
	KeyConversationHistory = "conversation_history"
	KeyLastLLMResponse     = "last_llm_response"
	KeyRetryCount          = "retry_count"
)

// InternalKeys lists the bookkeeping keys excluded from rendered context.
var InternalKeys = map[string]bool{
	KeyMessage:             true,
	KeyErrorMessage:        true,
	KeyConversationHistory: true,
	KeyLastLLMResponse:     true,
	KeyRetryCount:          true,
}

// IsPresent reports whether a context value counts as collected.
// Nil and the empty string are missing; false and zero are present.
func IsPresent(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true
	}
}
