package format

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/dop251/goja"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/modrun/errors"
	"github.com/wippyai/modrun/module"
)

// decoder turns a data document into JSON text.
type decoder func(name string, data []byte) ([]byte, error)

// dataAdapter builds data-document records: the document is decoded at
// materialize time and exposed as the single default export.
func dataAdapter(decode decoder) Adapter {
	return AdapterFunc(func(env *Env, id string) (*module.Record, error) {
		data, err := env.Read(id)
		if err != nil {
			return nil, err
		}
		text, err := decode(id, data)
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseLoad, id, err)
		}
		value, err := parseJSON(env.VM, text)
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseLoad, id, err)
		}

		rec := module.New(env.VM, id, module.Data)
		rec.Interop = true
		rec.Body = static{}
		rec.DefineValue("default", value)
		return rec, nil
	})
}

// parseJSON builds native script values through JSON.parse so documents
// behave like plain objects and arrays.
func parseJSON(vm *goja.Runtime, text []byte) (goja.Value, error) {
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("JSON.parse unavailable")
	}
	return parse(goja.Undefined(), vm.ToValue(string(text)))
}

func decodeJSON(_ string, data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !json.Valid(data) {
		var v any
		return nil, json.Unmarshal(data, &v)
	}
	return data, nil
}

func decodeYAML(_ string, data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(normalize(v))
}

func decodeTOML(_ string, data []byte) ([]byte, error) {
	var v map[string]any
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(normalize(v))
}

func decodeCUE(name string, data []byte) ([]byte, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	return v.MarshalJSON()
}

// normalize converts decoder output into values encoding/json accepts.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
