package flow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/compozy/flowfix/pkg/config"
)

// Record columns written by the session updates.
const (
	paramEntityName        = "entityName"
	paramRecordID          = "recordId"
	paramStatus            = "item/sp_status"
	paramCompletedOn       = "item/sp_completedon"
	paramErrorMessage      = "item/sp_errormessage"
	paramTotalFolders      = "item/sp_totalfolders"
	paramUniquePermissions = "item/sp_folderswithuniquepermissions"

	connectionKeyExpression = "@json(decodeBase64(triggerOutputs().headers['X-MS-APIM-Tokens']))['$ConnectionKey']"
)

// Names of the actions created inside the injected scopes.
const (
	ActionSetHasError          = "Set_HasError_True"
	ActionGetErrorDetails      = "Get_Error_Details"
	ActionUpdateSessionFailed  = "Update_Scan_Session_Failed"
	ActionCheckNoError         = "Check_No_Error"
	ActionUpdateSessionDone    = "Update_Scan_Session_Completed"
	ActionConditionCheckError  = "Condition_Check_Error"
	ActionBranchSessionFailed  = "Update_Session_Failed"
	ActionBranchSessionSuccess = "Update_Session_Success"
)

// ScopeNames are the action names of the three scopes.
type ScopeNames struct {
	Try     string
	Catch   string
	Finally string
}

// SessionTarget describes the record the scopes update and the variables they read.
type SessionTarget struct {
	ConnectionName            string
	APIID                     string
	OperationID               string
	EntityName                string
	RecordVariable            string
	ErrorVariable             string
	TotalFoldersVariable      string
	UniquePermissionsVariable string
	StatusCompleted           int
	StatusFailed              int
	ExtraParameters           map[string]any
}

// Options parameterize the scope builders and fix steps.
type Options struct {
	Scopes   ScopeNames
	Session  SessionTarget
	FreshIDs bool
}

// OptionsFromConfig maps the flow and session configuration onto builder options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Scopes: ScopeNames{
			Try:     cfg.Flow.TryScope,
			Catch:   cfg.Flow.CatchScope,
			Finally: cfg.Flow.FinallyScope,
		},
		Session: SessionTarget{
			ConnectionName:            cfg.Session.ConnectionName,
			APIID:                     cfg.Session.APIID,
			OperationID:               cfg.Session.OperationID,
			EntityName:                cfg.Session.EntityName,
			RecordVariable:            cfg.Session.RecordVariable,
			ErrorVariable:             cfg.Session.ErrorVariable,
			TotalFoldersVariable:      cfg.Session.TotalFoldersVariable,
			UniquePermissionsVariable: cfg.Session.UniquePermissionsVariable,
			StatusCompleted:           cfg.Session.StatusCompleted,
			StatusFailed:              cfg.Session.StatusFailed,
			ExtraParameters:           cfg.Session.ExtraParameters,
		},
		FreshIDs: cfg.Flow.FreshIDs,
	}
}

// DefaultOptions returns options built from the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

type builder struct {
	opts Options
}

func (b builder) metadata(id string) *Metadata {
	if b.opts.FreshIDs {
		return &Metadata{OperationMetadataID: uuid.NewString()}
	}
	return &Metadata{OperationMetadataID: id}
}

func variable(name string) string {
	return fmt.Sprintf("@variables('%s')", name)
}

// updateRecord builds the connector inputs for a session update. Columns follow
// the built-in ones in order; configured extra parameters come last, sorted by
// name, and replace a built-in column of the same name in place.
func (b builder) updateRecord(status int, columns Parameters) (*ConnectionInputs, error) {
	s := b.opts.Session
	params := Parameters{
		{Name: paramEntityName, Value: s.EntityName},
		{Name: paramRecordID, Value: variable(s.RecordVariable)},
		{Name: paramStatus, Value: status},
		{Name: paramCompletedOn, Value: "@utcNow()"},
	}
	for _, col := range columns {
		params.Set(col.Name, col.Value)
	}
	if len(s.ExtraParameters) > 0 {
		extra, ok := deepcopy.Copy(s.ExtraParameters).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("failed to copy extra parameters")
		}
		for _, name := range slices.Sorted(maps.Keys(extra)) {
			params.Set(name, extra[name])
		}
	}
	return &ConnectionInputs{
		Host: ConnectionHost{
			ConnectionName: s.ConnectionName,
			OperationID:    s.OperationID,
			APIID:          s.APIID,
		},
		Parameters: params,
		Authentication: Authentication{
			Type:  "Raw",
			Value: connectionKeyExpression,
		},
	}, nil
}

// totals are the folder counters reported when a scan session ends.
func (b builder) totals() Parameters {
	s := b.opts.Session
	var cols Parameters
	if s.TotalFoldersVariable != "" {
		cols = append(cols, Parameter{Name: paramTotalFolders, Value: variable(s.TotalFoldersVariable)})
	}
	if s.UniquePermissionsVariable != "" {
		cols = append(cols, Parameter{Name: paramUniquePermissions, Value: variable(s.UniquePermissionsVariable)})
	}
	return cols
}

func (b builder) sessionUpdate(status int, columns Parameters, runAfter RunAfter, id string) (*Action, error) {
	inputs, err := b.updateRecord(status, columns)
	if err != nil {
		return nil, err
	}
	return &Action{
		RunAfter: runAfter,
		Metadata: b.metadata(id),
		Type:     TypeOpenAPIConnection,
		Inputs:   inputs,
	}, nil
}

// BuildCatchScope returns the error-handling scope: flag the error, capture the
// try scope result and mark the session failed. It runs when the try scope
// fails or times out.
func BuildCatchScope(opts Options) (*Action, error) {
	b := builder{opts: opts}
	s := opts.Session
	update, err := b.sessionUpdate(
		s.StatusFailed,
		Parameters{{Name: paramErrorMessage, Value: fmt.Sprintf("@string(outputs('%s'))", ActionGetErrorDetails)}},
		After(ActionGetErrorDetails, StatusSucceeded),
		"update-session-failed",
	)
	if err != nil {
		return nil, err
	}
	return &Action{
		Actions: Actions{
			{Name: ActionSetHasError, Action: &Action{
				RunAfter: RunAfter{},
				Metadata: b.metadata("2d93ebed-cc47-4ab2-a059-00bec0f356de"),
				Type:     TypeSetVariable,
				Inputs:   SetVariableInputs{Name: s.ErrorVariable, Value: true},
			}},
			{Name: ActionGetErrorDetails, Action: &Action{
				RunAfter: After(ActionSetHasError, StatusSucceeded),
				Metadata: b.metadata("error-details-compose"),
				Type:     TypeCompose,
				Inputs:   fmt.Sprintf("@result('%s')", opts.Scopes.Try),
			}},
			{Name: ActionUpdateSessionFailed, Action: update},
		},
		RunAfter: After(opts.Scopes.Try, StatusFailed, StatusTimedOut),
		Metadata: b.metadata("catch-scope-id"),
		Type:     TypeScope,
	}, nil
}

// BuildStatusFinallyScope returns a finally scope that marks the session completed
// when no error was flagged. It runs after both the try and catch scopes whatever
// their outcome.
func BuildStatusFinallyScope(opts Options) (*Action, error) {
	b := builder{opts: opts}
	s := opts.Session
	completed, err := b.sessionUpdate(s.StatusCompleted, b.totals(), RunAfter{}, "update-session-completed")
	if err != nil {
		return nil, err
	}
	return &Action{
		Actions: Actions{
			{Name: ActionCheckNoError, Action: &Action{
				Actions:  Actions{{Name: ActionUpdateSessionDone, Action: completed}},
				Else:     &Branch{Actions: Actions{}},
				RunAfter: RunAfter{},
				Expression: map[string]any{
					"equals": []any{variable(s.ErrorVariable), false},
				},
				Metadata: b.metadata("check-no-error-condition"),
				Type:     TypeIf,
			}},
		},
		RunAfter: After(opts.Scopes.Try, AllStatuses...).And(opts.Scopes.Catch, AllStatuses...),
		Metadata: b.metadata("finally-scope-id"),
		Type:     TypeScope,
	}, nil
}

// BuildBranchingFinallyScope returns a finally scope that records either a failed
// or a completed session depending on the error flag. It runs once the catch scope
// has finished or was skipped.
func BuildBranchingFinallyScope(opts Options) (*Action, error) {
	b := builder{opts: opts}
	s := opts.Session
	failed, err := b.sessionUpdate(s.StatusFailed, b.totals(), RunAfter{}, "update-session-failed-001")
	if err != nil {
		return nil, err
	}
	success, err := b.sessionUpdate(s.StatusCompleted, b.totals(), RunAfter{}, "update-session-success-001")
	if err != nil {
		return nil, err
	}
	return &Action{
		Actions: Actions{
			{Name: ActionConditionCheckError, Action: &Action{
				Actions:  Actions{{Name: ActionBranchSessionFailed, Action: failed}},
				Else:     &Branch{Actions: Actions{{Name: ActionBranchSessionSuccess, Action: success}}},
				RunAfter: RunAfter{},
				Expression: map[string]any{
					"equals": []any{variable(s.ErrorVariable), true},
				},
				Metadata: b.metadata("condition-check-error-001"),
				Type:     TypeIf,
			}},
		},
		RunAfter: After(opts.Scopes.Catch, StatusSucceeded, StatusFailed, StatusSkipped),
		Metadata: b.metadata("finally-scope-001"),
		Type:     TypeScope,
	}, nil
}
