package rdstation

import (
	"github.com/tombee/rdstation-connector/internal/operation/api"
)

var (
	emailParam = api.ParameterInfo{
		Name:        "email",
		DisplayName: "Email",
		Type:        "string",
		Description: "Primary email for the lead",
		Required:    true,
	}

	funnelNameParam = api.ParameterInfo{
		Name:        "funnel_name",
		DisplayName: "Funnel Name",
		Type:        "string",
		Description: "Name of the funnel to which the Contact should be marked as opportunity, won or lost",
		Required:    true,
	}

	customFieldsParam = api.ParameterInfo{
		Name:        "custom_fields",
		DisplayName: "Custom Fields",
		Type:        "collection",
		Description: `Custom fields as {"field_id", "field_value"} entries or [key, value] pairs. Field names use the "cf_" prefix, e.g. cf_idade`,
	}
)

var eventResponse = []api.ResponseFieldInfo{
	{Name: "event_uuid", Type: "string", Description: "Identifier assigned to the accepted event"},
}

// Schema returns the parameter schema of a category, or nil.
func Schema(category Category) *api.OperationSchema {
	switch category {
	case CategoryConversion:
		return &api.OperationSchema{
			Description: "Register a new conversion for a lead",
			Parameters: []api.ParameterInfo{
				{Name: "identifier", DisplayName: "Identifier", Type: "string", Description: "Conversion Identifier", Required: true},
				emailParam,
				{Name: "mobile_phone", DisplayName: "Mobile Phone", Type: "string", Description: "Lead mobile phone number"},
				{Name: "name", DisplayName: "Name", Type: "string", Description: "Lead full name"},
				{Name: "job_title", DisplayName: "Job Title", Type: "string", Description: "Lead job title"},
				customFieldsParam,
			},
			ResponseFields: eventResponse,
		}
	case CategoryOpportunity:
		return &api.OperationSchema{
			Description:    "Mark a contact as an opportunity in a funnel",
			Parameters:     []api.ParameterInfo{emailParam, funnelNameParam},
			ResponseFields: eventResponse,
		}
	case CategorySale:
		return &api.OperationSchema{
			Description: "Mark an opportunity as won",
			Parameters: []api.ParameterInfo{
				emailParam,
				funnelNameParam,
				{Name: "value", DisplayName: "Value", Type: "number", Description: "Value of the won opportunity"},
			},
			ResponseFields: eventResponse,
		}
	case CategoryLost:
		return &api.OperationSchema{
			Description: "Mark an opportunity as lost",
			Parameters: []api.ParameterInfo{
				emailParam,
				funnelNameParam,
				{Name: "reason", DisplayName: "Reason", Type: "string", Description: "Reason for why the Contact was marked as lost"},
			},
			ResponseFields: eventResponse,
		}
	case CategoryCallFinished:
		return &api.OperationSchema{
			Description: "Record a finished call from call tracking",
			Parameters: []api.ParameterInfo{
				emailParam,
				{Name: "call_from_number", DisplayName: "Call From Number", Type: "string", Description: "Number of Call Tracking", Required: true},
				{
					Name:        "call_type",
					DisplayName: "Call Type",
					Type:        "options",
					Description: "Call type. Inbound or Outbound.",
					Default:     string(CallTypeOutbound),
					Options:     []string{string(CallTypeInbound), string(CallTypeOutbound)},
				},
				{Name: "call_status", DisplayName: "Call Status", Type: "string", Default: CallStatusInProgress, Hidden: true},
				customFieldsParam,
			},
			ResponseFields: eventResponse,
		}
	}
	return nil
}
