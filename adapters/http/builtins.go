package http

import (
	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// Built-in type and flow type identifiers for the HTTP protocol.
const (
	TypeMethod      = "HTTP_METHOD"
	TypeURL         = "HTTP_URL"
	TypeHeaderEntry = "HTTP_HEADER_ENTRY"
	TypeHeaderMap   = "HTTP_HEADER_MAP"
	TypeRequest     = "HTTP_REQUEST_OBJECT"
	TypeResponse    = "HTTP_RESPONSE_OBJECT"
	FlowTypeREST    = "REST"
)

// Protocol is the protocol segment of HTTP dispatch patterns.
const Protocol = "HTTP"

// Flow settings read by the disambiguator.
const (
	SettingMethod = "HTTP_METHOD"
	SettingPath   = "REQUEST_PATH"
	SettingURL    = "HTTP_URL"
)

// Methods accepted by HTTP_METHOD.
var Methods = []any{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"}

// Builtins returns the HTTP data types and the REST flow type.
func Builtins() catalog.Definition {
	return catalog.Definition{
		DataTypes: []datatype.DataType{
			{
				Identifier:           TypeMethod,
				Variant:              datatype.VariantType,
				ParentTypeIdentifier: datatype.Text,
				Rules:                []datatype.Rule{datatype.ItemOfCollection(Methods...)},
			},
			{
				Identifier:           TypeURL,
				Variant:              datatype.VariantURL,
				ParentTypeIdentifier: datatype.Text,
				Rules:                []datatype.Rule{datatype.Regex(`^/\S*$`)},
			},
			{
				Identifier:           TypeHeaderEntry,
				Variant:              datatype.VariantObject,
				ParentTypeIdentifier: datatype.Object,
				Rules: []datatype.Rule{
					datatype.ContainsKey("key", datatype.Text),
					datatype.ContainsKey("value", datatype.Text),
				},
			},
			{
				Identifier:           TypeHeaderMap,
				Variant:              datatype.VariantArray,
				ParentTypeIdentifier: datatype.Array,
				Rules:                []datatype.Rule{datatype.ContainsType(TypeHeaderEntry)},
			},
			{
				Identifier:           TypeRequest,
				Variant:              datatype.VariantObject,
				ParentTypeIdentifier: datatype.Object,
				Rules: []datatype.Rule{
					datatype.ContainsKey("method", TypeMethod),
					datatype.ContainsKey("url", TypeURL),
					datatype.ContainsKey("body", datatype.Object),
					datatype.ContainsKey("headers", TypeHeaderMap),
				},
			},
			{
				Identifier:           TypeResponse,
				Variant:              datatype.VariantObject,
				ParentTypeIdentifier: datatype.Object,
				Rules: []datatype.Rule{
					datatype.ContainsKey("body", datatype.Any),
					datatype.ContainsKey("headers", TypeHeaderMap),
				},
			},
		},
		FlowTypes: []flow.FlowType{{
			Identifier:           FlowTypeREST,
			InputTypeIdentifier:  TypeRequest,
			ReturnTypeIdentifier: TypeResponse,
			Editable:             true,
		}},
	}
}
