package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilnhq/agentcore/internal/modelclient"
	"github.com/kilnhq/agentcore/internal/store"
)

type registration struct {
	schema  modelclient.ToolSchema
	handler Handler
}

// Registry is the catalogue of tools presentable to the model and
// dispatchable by name.
type Registry struct {
	tools map[string]registration
	order []string
}

// NewRegistry builds the full tool catalogue specified in spec §4.4.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]registration)}
	r.register("readFile", readFileSchema, readFile)
	r.register("writeFile", writeFileSchema, writeFile)
	r.register("deleteFile", deleteFileSchema, deleteFile)
	r.register("listDirectory", listDirectorySchema, listDirectory)
	r.register("createDirectory", createDirectorySchema, createDirectory)
	r.register("searchFiles", searchFilesSchema, searchFiles)
	r.register("getProjectInfo", getProjectInfoSchema, getProjectInfo)
	r.register("finishWork", finishWorkSchema, finishWork)
	r.register("requireClarification", requireClarificationSchema, requireClarification)
	return r
}

func (r *Registry) register(name string, schema json.RawMessage, h Handler) {
	r.tools[name] = registration{
		schema:  modelclient.ToolSchema{Name: name, Description: toolDescriptions[name], InputSchema: schema},
		handler: h,
	}
	r.order = append(r.order, name)
}

// Schemas returns the tool schemas in registration order, for presentation
// to modelclient.Client.Stream.
func (r *Registry) Schemas() []modelclient.ToolSchema {
	out := make([]modelclient.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// Dispatch resolves sessionID from dc (missing context is a caller bug in
// the engine, never a model-facing condition since the engine always
// supplies it), records a running ProgressEntry, invokes the named tool,
// and records its completed/failed outcome.
func (r *Registry) Dispatch(ctx context.Context, dc DispatchContext, name string, args json.RawMessage) Result {
	if dc.SessionID == "" {
		return fail("no active session")
	}

	reg, known := r.tools[name]
	if !known {
		return fail("unknown tool: " + name)
	}

	progressID, _ := r.startProgress(ctx, dc, name)

	result, err := reg.handler(ctx, dc, args)
	if err != nil {
		result = fail(err.Error())
	}

	r.finishProgress(ctx, dc, progressID, result)
	return result
}

func (r *Registry) startProgress(ctx context.Context, dc DispatchContext, name string) (string, error) {
	if dc.Store == nil {
		return "", nil
	}
	entry, err := dc.Store.AddProgress(ctx, &store.ProgressEntry{
		SessionID: dc.SessionID,
		Step:      name,
		Status:    store.ProgressRunning,
		Timestamp: time.Now(),
	})
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (r *Registry) finishProgress(ctx context.Context, dc DispatchContext, progressID string, result Result) {
	if dc.Store == nil || progressID == "" {
		return
	}
	status := store.ProgressCompleted
	details := ""
	if !result.OK {
		status = store.ProgressFailed
		details = result.Error
	}
	_, _ = dc.Store.AddProgress(ctx, &store.ProgressEntry{
		SessionID: dc.SessionID,
		Step:      "result",
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	})
}
