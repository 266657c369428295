package flow

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const connectionHost = `"host": {
	"connectionName": "shared_commondataserviceforapps",
	"operationId": "UpdateRecord",
	"apiId": "/providers/Microsoft.PowerApps/apis/shared_commondataserviceforapps"
}`

const connectionAuth = `"authentication": {
	"type": "Raw",
	"value": "@json(decodeBase64(triggerOutputs().headers['X-MS-APIM-Tokens']))['$ConnectionKey']"
}`

func marshalScope(t *testing.T, build func(Options) (*Action, error), opts Options) string {
	t.Helper()
	scope, err := build(opts)
	require.NoError(t, err)
	data, err := json.Marshal(scope)
	require.NoError(t, err)
	return string(data)
}

func TestBuildCatchScope(t *testing.T) {
	t.Run("Should build the error handling scope", func(t *testing.T) {
		got := marshalScope(t, BuildCatchScope, DefaultOptions())

		want := `{
			"actions": {
				"Set_HasError_True": {
					"runAfter": {},
					"metadata": {"operationMetadataId": "2d93ebed-cc47-4ab2-a059-00bec0f356de"},
					"type": "SetVariable",
					"inputs": {"name": "HasError", "value": true}
				},
				"Get_Error_Details": {
					"runAfter": {"Set_HasError_True": ["Succeeded"]},
					"metadata": {"operationMetadataId": "error-details-compose"},
					"type": "Compose",
					"inputs": "@result('Try_Scope')"
				},
				"Update_Scan_Session_Failed": {
					"runAfter": {"Get_Error_Details": ["Succeeded"]},
					"metadata": {"operationMetadataId": "update-session-failed"},
					"type": "OpenApiConnection",
					"inputs": {
						` + connectionHost + `,
						"parameters": {
							"entityName": "sp_scansessions",
							"recordId": "@variables('ScanSessionId')",
							"item/sp_status": 100000002,
							"item/sp_completedon": "@utcNow()",
							"item/sp_errormessage": "@string(outputs('Get_Error_Details'))"
						},
						` + connectionAuth + `
					}
				}
			},
			"runAfter": {"Try_Scope": ["Failed", "TimedOut"]},
			"metadata": {"operationMetadataId": "catch-scope-id"},
			"type": "Scope"
		}`
		assert.JSONEq(t, want, got)
		assert.Equal(t,
			[]string{"Set_HasError_True", "Get_Error_Details", "Update_Scan_Session_Failed"},
			keys(gjson.Get(got, "actions")),
		)
	})

	t.Run("Should follow configured scope and variable names", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Scopes.Try = "Main"
		opts.Session.ErrorVariable = "Failed"

		got := marshalScope(t, BuildCatchScope, opts)

		assert.Equal(t, "@result('Main')", gjson.Get(got, "actions.Get_Error_Details.inputs").String())
		assert.Equal(t, "Failed", gjson.Get(got, "actions.Set_HasError_True.inputs.name").String())
		assert.True(t, gjson.Get(got, "runAfter.Main").IsArray())
	})
}

func TestBuildStatusFinallyScope(t *testing.T) {
	t.Run("Should complete the session when no error was flagged", func(t *testing.T) {
		got := marshalScope(t, BuildStatusFinallyScope, DefaultOptions())

		want := `{
			"actions": {
				"Check_No_Error": {
					"actions": {
						"Update_Scan_Session_Completed": {
							"runAfter": {},
							"metadata": {"operationMetadataId": "update-session-completed"},
							"type": "OpenApiConnection",
							"inputs": {
								` + connectionHost + `,
								"parameters": {
									"entityName": "sp_scansessions",
									"recordId": "@variables('ScanSessionId')",
									"item/sp_status": 100000000,
									"item/sp_completedon": "@utcNow()",
									"item/sp_totalfolders": "@variables('TotalFolders')",
									"item/sp_folderswithuniquepermissions": "@variables('FoldersWithUniquePerms')"
								},
								` + connectionAuth + `
							}
						}
					},
					"else": {"actions": {}},
					"runAfter": {},
					"expression": {"equals": ["@variables('HasError')", false]},
					"metadata": {"operationMetadataId": "check-no-error-condition"},
					"type": "If"
				}
			},
			"runAfter": {
				"Try_Scope": ["Succeeded", "Failed", "Skipped", "TimedOut"],
				"Catch_Scope": ["Succeeded", "Failed", "Skipped", "TimedOut"]
			},
			"metadata": {"operationMetadataId": "finally-scope-id"},
			"type": "Scope"
		}`
		assert.JSONEq(t, want, got)
	})
}

func TestBuildBranchingFinallyScope(t *testing.T) {
	t.Run("Should record either outcome of the session", func(t *testing.T) {
		got := marshalScope(t, BuildBranchingFinallyScope, DefaultOptions())

		cond := gjson.Get(got, "actions.Condition_Check_Error")
		assert.Equal(t, "If", cond.Get("type").String())
		assert.JSONEq(t, `{"equals": ["@variables('HasError')", true]}`, cond.Get("expression").Raw)
		assert.Equal(t, int64(100000002), cond.Get("actions.Update_Session_Failed.inputs.parameters.item/sp_status").Int())
		assert.Equal(t,
			int64(100000000),
			cond.Get("else.actions.Update_Session_Success.inputs.parameters.item/sp_status").Int(),
		)
		assert.Equal(t, "update-session-failed-001", cond.Get("actions.Update_Session_Failed.metadata.operationMetadataId").String())
		assert.Equal(t, "condition-check-error-001", cond.Get("metadata.operationMetadataId").String())
		assert.Equal(t, "finally-scope-001", gjson.Get(got, "metadata.operationMetadataId").String())
		assert.JSONEq(t, `{"Catch_Scope": ["Succeeded", "Failed", "Skipped"]}`, gjson.Get(got, "runAfter").Raw)
	})
}

func TestScopeOptions(t *testing.T) {
	t.Run("Should merge extra parameters over the built-in columns", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Session.ExtraParameters = map[string]any{
			"item/sp_source":      "flowfix",
			"item/sp_completedon": "@addHours(utcNow(), 1)",
		}

		got := marshalScope(t, BuildCatchScope, opts)

		params := gjson.Get(got, "actions.Update_Scan_Session_Failed.inputs.parameters")
		assert.Equal(t, "flowfix", params.Get("item/sp_source").String())
		assert.Equal(t, "@addHours(utcNow(), 1)", params.Get("item/sp_completedon").String())
		assert.Equal(t, "sp_scansessions", params.Get("entityName").String())
	})

	t.Run("Should keep dotted parameter names as single keys", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Session.ExtraParameters = map[string]any{
			"item/sp_ScanOwner@odata.bind": "/systemusers(00000000-0000-0000-0000-000000000001)",
		}

		scope, err := BuildCatchScope(opts)
		require.NoError(t, err)
		data, err := json.Marshal(scope)
		require.NoError(t, err)

		params := gjson.GetBytes(data, "actions.Update_Scan_Session_Failed.inputs.parameters")
		bind := params.Get(gjson.Escape("item/sp_ScanOwner@odata.bind"))
		assert.Equal(t, "/systemusers(00000000-0000-0000-0000-000000000001)", bind.String())
		assert.False(t, params.Get(gjson.Escape("item/sp_ScanOwner@odata")).Exists())
	})

	t.Run("Should write parameters in designer order with extras last", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Session.ExtraParameters = map[string]any{
			"item/sp_source":      "flowfix",
			"item/sp_completedon": "@addHours(utcNow(), 1)",
		}

		scope, err := BuildBranchingFinallyScope(opts)
		require.NoError(t, err)
		branch, _ := scope.Actions.Get(ActionConditionCheckError)
		update, _ := branch.Actions.Get(ActionBranchSessionFailed)
		inputs := update.Inputs.(*ConnectionInputs)

		assert.Equal(t, []string{
			"entityName",
			"recordId",
			"item/sp_status",
			"item/sp_completedon",
			"item/sp_totalfolders",
			"item/sp_folderswithuniquepermissions",
			"item/sp_source",
		}, inputs.Parameters.Names())
		completed, _ := inputs.Parameters.Get("item/sp_completedon")
		assert.Equal(t, "@addHours(utcNow(), 1)", completed)
	})

	t.Run("Should not alias configured extra parameters", func(t *testing.T) {
		nested := map[string]any{"k": "v"}
		opts := DefaultOptions()
		opts.Session.ExtraParameters = map[string]any{"item/sp_meta": nested}

		scope, err := BuildCatchScope(opts)
		require.NoError(t, err)
		update, _ := scope.Actions.Get(ActionUpdateSessionFailed)
		inputs := update.Inputs.(*ConnectionInputs)
		meta, ok := inputs.Parameters.Get("item/sp_meta")
		require.True(t, ok)
		meta.(map[string]any)["k"] = "changed"

		assert.Equal(t, "v", nested["k"])
	})

	t.Run("Should omit folder totals without configured variables", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Session.TotalFoldersVariable = ""
		opts.Session.UniquePermissionsVariable = ""

		got := marshalScope(t, BuildStatusFinallyScope, opts)

		params := gjson.Get(got, "actions.Check_No_Error.actions.Update_Scan_Session_Completed.inputs.parameters")
		assert.False(t, params.Get("item/sp_totalfolders").Exists())
		assert.False(t, params.Get("item/sp_folderswithuniquepermissions").Exists())
	})

	t.Run("Should generate fresh metadata ids when requested", func(t *testing.T) {
		opts := DefaultOptions()
		opts.FreshIDs = true

		got := marshalScope(t, BuildCatchScope, opts)

		id := gjson.Get(got, "metadata.operationMetadataId").String()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.NotEqual(t, id, gjson.Get(got, "actions.Get_Error_Details.metadata.operationMetadataId").String())
	})
}

func keys(obj gjson.Result) []string {
	var out []string
	obj.ForEach(func(k, _ gjson.Result) bool {
		out = append(out, k.String())
		return true
	})
	return out
}
