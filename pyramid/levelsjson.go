package pyramid

import (
	"bytes"
	"encoding/json"
	"math"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/mipexport/mip"
)

const levelsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["factors", "block"],
		"properties": {
			"factors": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "number"}
			},
			"block": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "integer", "minimum": 1}
			}
		}
	}
}`

var (
	levelsSchemaOnce sync.Once
	levelsSchemaC    *jsonschema.Schema
	levelsSchemaErr  error
)

func compiledLevelsSchema() (*jsonschema.Schema, error) {
	levelsSchemaOnce.Do(func() {
		levelsSchemaC, levelsSchemaErr = jsonschema.CompileString("levels.json", levelsSchema)
	})
	return levelsSchemaC, levelsSchemaErr
}

type levelJSON struct {
	Factors []float64 `json:"factors"`
	Block   []int64   `json:"block"`
}

// ParseLevelsJSON parses a level list of the form
//
//	[{"factors": [1,1,1], "block": [64,64,64]}, {"factors": [2,2,1], "block": [64,64,64]}]
//
// and returns factors and block shapes suitable for Plan.  Factors that are not
// positive integers are reported as a *mip.PlanningError.
func ParseLevelsJSON(data []byte) (factors, blockShapes []mip.Point, err error) {
	sch, err := compiledLevelsSchema()
	if err != nil {
		return nil, nil, err
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err = dec.Decode(&doc); err != nil {
		return nil, nil, mip.NewPlanningError(-1, "bad levels JSON: %v", err)
	}
	if err = sch.Validate(doc); err != nil {
		return nil, nil, mip.NewPlanningError(-1, "levels JSON doesn't match schema: %v", err)
	}
	var levels []levelJSON
	if err = json.Unmarshal(data, &levels); err != nil {
		return nil, nil, mip.NewPlanningError(-1, "bad levels JSON: %v", err)
	}
	for l, lj := range levels {
		f := make(mip.Point, len(lj.Factors))
		for d, v := range lj.Factors {
			if v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
				return nil, nil, mip.NewPlanningError(l, "factor %g in dimension %d is not a positive integer", v, d)
			}
			f[d] = int64(v)
		}
		factors = append(factors, f)
		blockShapes = append(blockShapes, mip.NewPoint(lj.Block...))
	}
	return factors, blockShapes, nil
}
