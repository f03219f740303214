package mqtt

import (
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

const (
	// Protocol is the protocol segment of MQTT dispatch patterns.
	Protocol = "MQTT"
	// Event is the trailing pattern segment of every inbound message.
	Event = "PUBLISH"

	TypeMessage  = "MQTT_MESSAGE_OBJECT"
	FlowTypeMQTT = "MQTT"

	// SettingTopic is a topic filter ("+" and "#" wildcards) matched
	// against the message topic.
	SettingTopic = "MQTT_TOPIC"
	// SettingResponseTopic names the topic the flow output is published to.
	SettingResponseTopic = "MQTT_RESPONSE_TOPIC"
)

// Builtins returns the MQTT data types and the MQTT flow type.
func Builtins() catalog.Definition {
	return catalog.Definition{
		DataTypes: []datatype.DataType{{
			Identifier:           TypeMessage,
			Variant:              datatype.VariantObject,
			ParentTypeIdentifier: datatype.Object,
			Rules: []datatype.Rule{
				datatype.ContainsKey("topic", datatype.Text),
				datatype.ContainsKey("payload", datatype.Any),
			},
		}},
		FlowTypes: []flow.FlowType{{
			Identifier:          FlowTypeMQTT,
			InputTypeIdentifier: TypeMessage,
			Editable:            true,
		}},
	}
}
