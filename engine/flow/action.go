package flow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Action types used by the injected scopes.
const (
	TypeScope             = "Scope"
	TypeIf                = "If"
	TypeSetVariable       = "SetVariable"
	TypeCompose           = "Compose"
	TypeOpenAPIConnection = "OpenApiConnection"
)

// Metadata carries the designer bookkeeping attached to each action.
type Metadata struct {
	OperationMetadataID string `json:"operationMetadataId"`
}

// Action is a single workflow action. Field order follows the designer export.
type Action struct {
	Actions    Actions   `json:"actions,omitempty"`
	Else       *Branch   `json:"else,omitempty"`
	RunAfter   RunAfter  `json:"runAfter"`
	Expression any       `json:"expression,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	Type       string    `json:"type"`
	Inputs     any       `json:"inputs,omitempty"`
}

// Branch is the else side of an If action.
type Branch struct {
	Actions Actions `json:"actions"`
}

// NamedAction pairs an action with its key in the parent actions object.
type NamedAction struct {
	Name   string
	Action *Action
}

// Actions is an ordered actions object.
type Actions []NamedAction

// Get returns the action registered under name.
func (a Actions) Get(name string) (*Action, bool) {
	for _, na := range a {
		if na.Name == name {
			return na.Action, true
		}
	}
	return nil, false
}

// Names returns action names in order.
func (a Actions) Names() []string {
	names := make([]string, 0, len(a))
	for _, na := range a {
		names = append(names, na.Name)
	}
	return names
}

func (a Actions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, na := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(na.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(na.Action)
		if err != nil {
			return nil, fmt.Errorf("failed to encode action %s: %w", na.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Actions) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("actions must be an object, got %s", res.Type)
	}
	out := Actions{}
	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		var act Action
		if uerr := json.Unmarshal([]byte(value.Raw), &act); uerr != nil {
			err = fmt.Errorf("failed to decode action %s: %w", key.String(), uerr)
			return false
		}
		out = append(out, NamedAction{Name: key.String(), Action: &act})
		return true
	})
	if err != nil {
		return err
	}
	*a = out
	return nil
}

// ConnectionInputs are the inputs of an OpenApiConnection action.
type ConnectionInputs struct {
	Host           ConnectionHost `json:"host"`
	Parameters     Parameters     `json:"parameters"`
	Authentication Authentication `json:"authentication"`
}

// Parameter is a single connector parameter.
type Parameter struct {
	Name  string
	Value any
}

// Parameters is an ordered parameters object. Names are used verbatim as JSON
// keys, including slashes and dots such as "item/sp_owner@odata.bind".
type Parameters []Parameter

// Get returns the value stored under name.
func (p Parameters) Get(name string) (any, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of name in place, or appends it when absent.
func (p *Parameters) Set(name string, value any) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Parameter{Name: name, Value: value})
}

// Names returns parameter names in order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for _, param := range p {
		names = append(names, param.Name)
	}
	return names
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(param.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameter %s: %w", param.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Parameters) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("parameters must be an object, got %s", res.Type)
	}
	out := Parameters{}
	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		var v any
		if uerr := json.Unmarshal([]byte(value.Raw), &v); uerr != nil {
			err = fmt.Errorf("failed to decode parameter %s: %w", key.String(), uerr)
			return false
		}
		out = append(out, Parameter{Name: key.String(), Value: v})
		return true
	})
	if err != nil {
		return err
	}
	*p = out
	return nil
}

type ConnectionHost struct {
	ConnectionName string `json:"connectionName"`
	OperationID    string `json:"operationId"`
	APIID          string `json:"apiId"`
}

type Authentication struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SetVariableInputs are the inputs of a SetVariable action.
type SetVariableInputs struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
