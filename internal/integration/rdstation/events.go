package rdstation

import (
	"fmt"
	"strings"
)

// Category selects the kind of marketing event sent to RD Station.
type Category string

const (
	CategoryConversion   Category = "conversion"
	CategoryOpportunity  Category = "opportunity"
	CategorySale         Category = "sale"
	CategoryLost         Category = "lost"
	CategoryCallFinished Category = "call_finished"
)

// Categories lists every supported category in display order.
var Categories = []Category{
	CategoryConversion,
	CategoryOpportunity,
	CategorySale,
	CategoryLost,
	CategoryCallFinished,
}

// eventTypes maps each category to the API event_type.
var eventTypes = map[Category]string{
	CategoryConversion:   "CONVERSION",
	CategoryOpportunity:  "OPPORTUNITY",
	CategorySale:         "SALE",
	CategoryLost:         "OPPORTUNITY_LOST",
	CategoryCallFinished: "CALL_FINISHED",
}

// EventFamily is the event_family sent with every event.
const EventFamily = "CDP"

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if _, ok := eventTypes[c]; !ok {
		return "", fmt.Errorf("unknown event category %q", s)
	}
	return c, nil
}

// EventType returns the API event_type for a category.
func EventType(c Category) (string, bool) {
	t, ok := eventTypes[c]
	return t, ok
}

// CallType is the direction of a finished call.
type CallType string

const (
	CallTypeInbound  CallType = "Inbound"
	CallTypeOutbound CallType = "Outbound"
)

// ParseCallType validates a call type. Empty defaults to Outbound.
func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case "":
		return CallTypeOutbound, nil
	case CallTypeInbound, CallTypeOutbound:
		return CallType(s), nil
	default:
		return "", fmt.Errorf("call_type must be %s or %s, got %q", CallTypeInbound, CallTypeOutbound, s)
	}
}

// CallStatusInProgress is the fixed call_status of CALL_FINISHED events.
const CallStatusInProgress = "in_progress"

// CustomField is one user-defined payload key. Custom fields are applied
// after the structured fields and may overwrite them.
type CustomField struct {
	Key   string
	Value string
}

// Event is one of ConversionEvent, OpportunityEvent, SaleEvent, LostEvent
// or CallFinishedEvent.
type Event interface {
	Category() Category
	payload() map[string]interface{}
}

// ConversionEvent registers a lead conversion.
type ConversionEvent struct {
	Email        string
	Identifier   string
	MobilePhone  string
	Name         string
	JobTitle     string
	CustomFields []CustomField
}

func (ConversionEvent) Category() Category { return CategoryConversion }

func (e ConversionEvent) payload() map[string]interface{} {
	p := map[string]interface{}{
		"email":                 e.Email,
		"conversion_identifier": e.Identifier,
	}
	setIfNotEmpty(p, "mobile_phone", e.MobilePhone)
	setIfNotEmpty(p, "name", e.Name)
	setIfNotEmpty(p, "job_title", e.JobTitle)
	applyCustomFields(p, e.CustomFields)
	return p
}

// OpportunityEvent marks a contact as an opportunity in a funnel.
type OpportunityEvent struct {
	Email      string
	FunnelName string
}

func (OpportunityEvent) Category() Category { return CategoryOpportunity }

func (e OpportunityEvent) payload() map[string]interface{} {
	return map[string]interface{}{
		"email":       e.Email,
		"funnel_name": e.FunnelName,
	}
}

// SaleEvent marks an opportunity as won. Value is omitted when nil.
type SaleEvent struct {
	Email      string
	FunnelName string
	Value      *float64
}

func (SaleEvent) Category() Category { return CategorySale }

func (e SaleEvent) payload() map[string]interface{} {
	p := map[string]interface{}{
		"email":       e.Email,
		"funnel_name": e.FunnelName,
	}
	if e.Value != nil {
		p["value"] = *e.Value
	}
	return p
}

// LostEvent marks an opportunity as lost.
type LostEvent struct {
	Email      string
	FunnelName string
	Reason     string
}

func (LostEvent) Category() Category { return CategoryLost }

func (e LostEvent) payload() map[string]interface{} {
	p := map[string]interface{}{
		"email":       e.Email,
		"funnel_name": e.FunnelName,
	}
	setIfNotEmpty(p, "reason", e.Reason)
	return p
}

// CallFinishedEvent records a finished call from call tracking.
type CallFinishedEvent struct {
	Email          string
	CallFromNumber string
	CallType       CallType
	CustomFields   []CustomField
}

func (CallFinishedEvent) Category() Category { return CategoryCallFinished }

func (e CallFinishedEvent) payload() map[string]interface{} {
	callType := e.CallType
	if callType == "" {
		callType = CallTypeOutbound
	}
	p := map[string]interface{}{
		"email":            e.Email,
		"call_from_number": e.CallFromNumber,
		"call_type":        string(callType),
		"call_status":      CallStatusInProgress,
	}
	applyCustomFields(p, e.CustomFields)
	return p
}

// Envelope is the body of a POST /events request.
type Envelope struct {
	EventType   string                 `json:"event_type"`
	EventFamily string                 `json:"event_family"`
	Payload     map[string]interface{} `json:"payload"`
}

// BuildEnvelope assembles the request envelope for ev. The returned
// envelope shares no state with ev or with previous envelopes.
func BuildEnvelope(ev Event) Envelope {
	return Envelope{
		EventType:   eventTypes[ev.Category()],
		EventFamily: EventFamily,
		Payload:     ev.payload(),
	}
}

// Body returns the envelope as a request body.
func (e Envelope) Body() map[string]interface{} {
	return map[string]interface{}{
		"event_type":   e.EventType,
		"event_family": e.EventFamily,
		"payload":      e.Payload,
	}
}

func setIfNotEmpty(p map[string]interface{}, key, value string) {
	if value != "" {
		p[key] = value
	}
}

// applyCustomFields sets each field in order; later keys win.
func applyCustomFields(p map[string]interface{}, fields []CustomField) {
	for _, f := range fields {
		p[f.Key] = f.Value
	}
}
