package schema

import "encoding/json"

// ToolConfig is the decoded, typed configuration of a tool. The concrete
// type is determined by the tool's declared ToolType; dispatch matches it
// exhaustively so an unknown kind can only arise from ParseToolConfig.
type ToolConfig interface {
	Kind() ToolType
}

// APIConfig configures an api-type tool.
type APIConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (APIConfig) Kind() ToolType { return ToolTypeAPI }

// DatabaseConfig configures a database-type tool.
type DatabaseConfig struct {
	Table     string `json:"table"`
	Operation string `json:"operation"`
	Query     string `json:"query,omitempty"`
}

func (DatabaseConfig) Kind() ToolType { return ToolTypeDatabase }

// FileSystemConfig configures a file_system-type tool.
type FileSystemConfig struct {
	Bucket    string `json:"bucket"`
	Operation string `json:"operation"`
}

func (FileSystemConfig) Kind() ToolType { return ToolTypeFileSystem }

// CustomConfig configures a custom-type tool.
type CustomConfig struct {
	FunctionName string `json:"functionName"`
}

func (CustomConfig) Kind() ToolType { return ToolTypeCustom }

// ParseToolConfig decodes a configuration document into the typed config
// for the given tool type. Required-field checks are left to the dispatch
// handlers so their error messages carry operation context.
func ParseToolConfig(t ToolType, configuration map[string]any) (ToolConfig, error) {
	raw, err := json.Marshal(configuration)
	if err != nil {
		return nil, NewErrorf(ErrCodeValidation, "encode tool configuration: %s", err.Error()).WithCause(err)
	}

	switch t {
	case ToolTypeAPI:
		var cfg APIConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, configDecodeError(t, err)
		}
		return cfg, nil
	case ToolTypeDatabase:
		var cfg DatabaseConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, configDecodeError(t, err)
		}
		return cfg, nil
	case ToolTypeFileSystem:
		var cfg FileSystemConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, configDecodeError(t, err)
		}
		return cfg, nil
	case ToolTypeCustom:
		var cfg CustomConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, configDecodeError(t, err)
		}
		return cfg, nil
	default:
		return nil, NewErrorf(ErrCodeValidation, "unsupported tool type: %s", t)
	}
}

func configDecodeError(t ToolType, err error) *EngineError {
	return NewErrorf(ErrCodeValidation, "decode %s tool configuration: %s", t, err.Error()).WithCause(err)
}

// NormalizeDocument accepts the JSON-or-document storage representations of
// input/output/configuration fields and returns a document. A JSON-encoded
// string is decoded; a native document passes through; nil and empty values
// normalize to an empty document.
func NormalizeDocument(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		return val
	case string:
		if val == "" {
			return map[string]any{}
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(val), &doc); err == nil && doc != nil {
			return doc
		}
		// Tolerate double encoding: a JSON string that itself holds JSON.
		var inner string
		if err := json.Unmarshal([]byte(val), &inner); err == nil && inner != val {
			return NormalizeDocument(inner)
		}
		return map[string]any{}
	case json.RawMessage:
		return NormalizeDocument(string(val))
	case []byte:
		return NormalizeDocument(string(val))
	default:
		return map[string]any{}
	}
}
