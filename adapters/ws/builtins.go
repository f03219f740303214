package ws

import (
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

const (
	// Protocol is the protocol segment of WebSocket dispatch patterns.
	Protocol = "WS"
	// Event is the trailing pattern segment of every inbound frame.
	Event = "MESSAGE"

	TypeMessage = "WS_MESSAGE_OBJECT"
	FlowTypeWS  = "WS"

	// SettingPath is a regex matched against the frame path.
	SettingPath = "WS_PATH"
)

// Builtins returns the WebSocket data types and the WS flow type.
func Builtins() catalog.Definition {
	return catalog.Definition{
		DataTypes: []datatype.DataType{{
			Identifier:           TypeMessage,
			Variant:              datatype.VariantObject,
			ParentTypeIdentifier: datatype.Object,
			Rules: []datatype.Rule{
				datatype.ContainsKey("path", datatype.Text),
				datatype.ContainsKey("body", datatype.Any),
			},
		}},
		FlowTypes: []flow.FlowType{{
			Identifier:          FlowTypeWS,
			InputTypeIdentifier: TypeMessage,
			Editable:            true,
		}},
	}
}
