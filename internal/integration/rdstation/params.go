package rdstation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tombee/rdstation-connector/internal/operation"
	"github.com/tombee/rdstation-connector/internal/operation/api"
)

// EventFromInputs validates inputs for category and builds the event.
//
// Recognised inputs: email, identifier (or conversion_identifier),
// mobile_phone, name, job_title, funnel_name, value, reason,
// call_from_number, call_type and custom_fields. Inputs that do not apply
// to the category are ignored.
func EventFromInputs(category Category, inputs map[string]interface{}) (Event, error) {
	if _, ok := eventTypes[category]; !ok {
		return nil, operation.NewConfigurationError("unknown event category %q", category)
	}

	email, err := requiredString(inputs, "email")
	if err != nil {
		return nil, err
	}

	switch category {
	case CategoryConversion:
		identifier := api.StringInput(inputs, "identifier")
		if identifier == "" {
			identifier = api.StringInput(inputs, "conversion_identifier")
		}
		if strings.TrimSpace(identifier) == "" {
			return nil, operation.NewValidationError("missing required parameter: identifier")
		}
		fields, err := parseCustomFields(inputs["custom_fields"])
		if err != nil {
			return nil, err
		}
		return ConversionEvent{
			Email:        email,
			Identifier:   identifier,
			MobilePhone:  api.StringInput(inputs, "mobile_phone"),
			Name:         api.StringInput(inputs, "name"),
			JobTitle:     api.StringInput(inputs, "job_title"),
			CustomFields: fields,
		}, nil

	case CategoryOpportunity:
		funnel, err := requiredString(inputs, "funnel_name")
		if err != nil {
			return nil, err
		}
		return OpportunityEvent{Email: email, FunnelName: funnel}, nil

	case CategorySale:
		funnel, err := requiredString(inputs, "funnel_name")
		if err != nil {
			return nil, err
		}
		return SaleEvent{Email: email, FunnelName: funnel, Value: parseNumber(inputs["value"])}, nil

	case CategoryLost:
		funnel, err := requiredString(inputs, "funnel_name")
		if err != nil {
			return nil, err
		}
		return LostEvent{Email: email, FunnelName: funnel, Reason: api.StringInput(inputs, "reason")}, nil

	default: // CategoryCallFinished
		number, err := requiredString(inputs, "call_from_number")
		if err != nil {
			return nil, err
		}
		callType, err := ParseCallType(api.StringInput(inputs, "call_type"))
		if err != nil {
			return nil, operation.NewValidationError("%s", err.Error())
		}
		fields, err := parseCustomFields(inputs["custom_fields"])
		if err != nil {
			return nil, err
		}
		return CallFinishedEvent{
			Email:          email,
			CallFromNumber: number,
			CallType:       callType,
			CustomFields:   fields,
		}, nil
	}
}

func requiredString(inputs map[string]interface{}, key string) (string, error) {
	s := api.StringInput(inputs, key)
	if strings.TrimSpace(s) == "" {
		return "", operation.NewValidationError("missing required parameter: %s", key)
	}
	return s, nil
}

// parseNumber returns v as a number when it is one or parses as one.
// Blank strings, NaN and other values yield nil.
func parseNumber(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parseCustomFields accepts a list of {field_id, field_value} objects
// (fieldId/fieldValue also accepted) or of [key, value] pairs.
func parseCustomFields(v interface{}) ([]CustomField, error) {
	if v == nil {
		return nil, nil
	}

	var list []interface{}
	switch raw := v.(type) {
	case []interface{}:
		list = raw
	case []map[string]interface{}:
		for _, m := range raw {
			list = append(list, m)
		}
	case [][]string:
		for _, pair := range raw {
			elems := make([]interface{}, len(pair))
			for i, s := range pair {
				elems[i] = s
			}
			list = append(list, elems)
		}
	case []CustomField:
		return raw, nil
	default:
		return nil, operation.NewValidationError("custom_fields must be a list, got %T", v)
	}

	fields := make([]CustomField, 0, len(list))
	for i, entry := range list {
		var key, value string
		switch e := entry.(type) {
		case map[string]interface{}:
			key = firstString(e, "field_id", "fieldId", "key")
			value = firstString(e, "field_value", "fieldValue", "value")
		case []interface{}:
			if len(e) != 2 {
				return nil, operation.NewValidationError("custom_fields[%d] must be a [key, value] pair", i)
			}
			key = api.StringInput(map[string]interface{}{"k": e[0]}, "k")
			value = api.StringInput(map[string]interface{}{"v": e[1]}, "v")
		default:
			return nil, operation.NewValidationError("custom_fields[%d] has unsupported type %T", i, entry)
		}
		if key == "" {
			return nil, operation.NewValidationError("custom_fields[%d] has no field name", i)
		}
		fields = append(fields, CustomField{Key: key, Value: value})
	}
	return fields, nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return api.StringInput(m, k)
		}
	}
	return ""
}
