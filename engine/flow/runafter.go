package flow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Status is an action outcome a runAfter condition can wait for.
type Status string

const (
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusSkipped   Status = "Skipped"
	StatusTimedOut  Status = "TimedOut"
)

// AllStatuses lists every outcome, for actions that must run regardless of how a predecessor ended.
var AllStatuses = []Status{StatusSucceeded, StatusFailed, StatusSkipped, StatusTimedOut}

// Dependency is one predecessor entry of a runAfter map.
type Dependency struct {
	Action   string
	Statuses []Status
}

// RunAfter is an ordered runAfter map. It encodes as a JSON object in insertion order.
type RunAfter []Dependency

// After starts a runAfter with a single predecessor.
func After(action string, statuses ...Status) RunAfter {
	return RunAfter{}.And(action, statuses...)
}

// And returns r with the predecessor added, replacing an existing entry for the same action.
func (r RunAfter) And(action string, statuses ...Status) RunAfter {
	out := make(RunAfter, 0, len(r)+1)
	replaced := false
	for _, dep := range r {
		if dep.Action == action {
			out = append(out, Dependency{Action: action, Statuses: statuses})
			replaced = true
			continue
		}
		out = append(out, dep)
	}
	if !replaced {
		out = append(out, Dependency{Action: action, Statuses: statuses})
	}
	return out
}

// Statuses returns the statuses recorded for action.
func (r RunAfter) Statuses(action string) ([]Status, bool) {
	for _, dep := range r {
		if dep.Action == action {
			return dep.Statuses, true
		}
	}
	return nil, false
}

func (r RunAfter) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dep := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(dep.Action)
		if err != nil {
			return nil, err
		}
		statuses := dep.Statuses
		if statuses == nil {
			statuses = []Status{}
		}
		val, err := json.Marshal(statuses)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *RunAfter) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("runAfter must be an object, got %s", res.Type)
	}
	out := RunAfter{}
	var err error
	res.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			err = fmt.Errorf("runAfter entry %q must be an array", key.String())
			return false
		}
		dep := Dependency{Action: key.String(), Statuses: []Status{}}
		for _, s := range value.Array() {
			dep.Statuses = append(dep.Statuses, Status(s.String()))
		}
		out = append(out, dep)
		return true
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}
