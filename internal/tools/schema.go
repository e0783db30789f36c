package tools

import "encoding/json"

var toolDescriptions = map[string]string{
	"readFile":             "Read a file's contents as UTF-8 text.",
	"writeFile":            "Write UTF-8 text to a file, creating it (and parent directories) if needed.",
	"deleteFile":           "Delete a file.",
	"listDirectory":        "List the immediate children of a directory.",
	"createDirectory":      "Create a directory, and any missing parents, idempotently.",
	"searchFiles":          "Recursively search for files whose name contains a substring.",
	"getProjectInfo":       "Return basic information about the project root.",
	"finishWork":           "Signal that the requested work is complete and ready for human review. Terminal.",
	"requireClarification": "Pause and ask the human a clarifying question. Terminal.",
}

func rawSchema(s string) json.RawMessage { return json.RawMessage(s) }

var readFileSchema = rawSchema(`{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`)

var writeFileSchema = rawSchema(`{
	"type": "object",
	"properties": {
		"path": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["path", "content"]
}`)

var deleteFileSchema = rawSchema(`{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`)

var listDirectorySchema = rawSchema(`{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`)

var createDirectorySchema = rawSchema(`{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`)

var searchFilesSchema = rawSchema(`{
	"type": "object",
	"properties": {
		"query": {"type": "string"},
		"dir": {"type": "string"}
	},
	"required": ["query"]
}`)

var getProjectInfoSchema = rawSchema(`{
	"type": "object",
	"properties": {"includeStats": {"type": "boolean"}}
}`)

var finishWorkSchema = rawSchema(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"changes": {"type": "string"},
		"notes": {"type": "string"}
	},
	"required": ["summary"]
}`)

var requireClarificationSchema = rawSchema(`{
	"type": "object",
	"properties": {
		"question": {"type": "string"},
		"context": {"type": "string"},
		"suggestions": {"type": "string"}
	},
	"required": ["question"]
}`)
