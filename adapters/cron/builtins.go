package cron

import (
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

const (
	// Protocol is the protocol segment of cron dispatch patterns.
	Protocol = "CRON"
	// Event is the trailing pattern segment of every tick.
	Event = "TICK"

	TypeTick     = "CRON_TICK_OBJECT"
	FlowTypeCron = "CRON"

	// SettingExpression holds a five-field cron expression.
	SettingExpression = "CRON_EXPRESSION"
)

// Field settings, used when CRON_EXPRESSION is absent. Each holds either the
// field text or an object carrying it under the field name, for example
// CRON_HOUR: {hour: "9-17"}.
var fieldSettings = []struct{ setting, field string }{
	{"CRON_MINUTE", "minute"},
	{"CRON_HOUR", "hour"},
	{"CRON_DAY_OF_MONTH", "day_of_month"},
	{"CRON_MONTH", "month"},
	{"CRON_DAY_OF_WEEK", "day_of_week"},
}

// Builtins returns the cron data types and the CRON flow type.
func Builtins() catalog.Definition {
	return catalog.Definition{
		DataTypes: []datatype.DataType{{
			Identifier:           TypeTick,
			Variant:              datatype.VariantObject,
			ParentTypeIdentifier: datatype.Object,
			Rules: []datatype.Rule{
				datatype.ContainsKey("expression", datatype.Text),
				datatype.ContainsKey("timestamp", datatype.Text),
			},
		}},
		FlowTypes: []flow.FlowType{{
			Identifier:          FlowTypeCron,
			InputTypeIdentifier: TypeTick,
			Editable:            true,
		}},
	}
}
