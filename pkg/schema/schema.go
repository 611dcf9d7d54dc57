package schema

import (
	"github.com/invopop/jsonschema"
)

func generateSchema[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// MovieSchema describes the movie records served by the API.
var MovieSchema = generateSchema[Movie]()

// DatasetSchema describes a full franchise dataset.
var DatasetSchema = generateSchema[Dataset]()
