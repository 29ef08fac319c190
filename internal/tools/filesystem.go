package tools

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/agentplate/agentplate/internal/blob"
	"github.com/agentplate/agentplate/pkg/schema"
)

// fileGateway executes file_system-type tools against bucket storage.
type fileGateway struct {
	store blob.Store
}

func (g *fileGateway) run(ctx context.Context, cfg schema.FileSystemConfig, input map[string]any) (map[string]any, error) {
	if g.store == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no file storage backend configured")
	}
	if cfg.Bucket == "" || cfg.Operation == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "file_system tool requires bucket and operation")
	}

	switch strings.ToLower(cfg.Operation) {
	case "upload":
		return g.upload(ctx, cfg.Bucket, input)
	case "download":
		return g.download(ctx, cfg.Bucket, input)
	case "list":
		return g.list(ctx, cfg.Bucket, input)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported file operation: %q", cfg.Operation)
	}
}

func (g *fileGateway) upload(ctx context.Context, bucket string, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	if path == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "upload requires input.path")
	}
	data, err := fileBytes(input["file"])
	if err != nil {
		return nil, err
	}
	if err := g.store.Upload(ctx, bucket, path, data); err != nil {
		return nil, err
	}
	return map[string]any{"bucket": bucket, "path": path, "size": len(data)}, nil
}

func (g *fileGateway) download(ctx context.Context, bucket string, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	if path == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "download requires input.path")
	}
	data, err := g.store.Download(ctx, bucket, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"bucket":  bucket,
		"path":    path,
		"content": base64.StdEncoding.EncodeToString(data),
		"size":    len(data),
	}, nil
}

func (g *fileGateway) list(ctx context.Context, bucket string, input map[string]any) (map[string]any, error) {
	prefix, _ := input["path"].(string)
	objects, err := g.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	entries := make([]any, len(objects))
	for i, obj := range objects {
		entries[i] = map[string]any{
			"key":        obj.Key,
			"size":       obj.Size,
			"updated_at": obj.UpdatedAt,
		}
	}
	return map[string]any{"bucket": bucket, "objects": entries, "count": len(entries)}, nil
}

// fileBytes extracts upload content from input.file. A string is taken as
// raw content; a document with an "encoding" of base64 is decoded.
func fileBytes(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return []byte(val), nil
	case map[string]any:
		content, _ := val["content"].(string)
		encoding, _ := val["encoding"].(string)
		if encoding == "base64" {
			data, err := base64.StdEncoding.DecodeString(content)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode base64 file content: %s", err.Error()).WithCause(err)
			}
			return data, nil
		}
		return []byte(content), nil
	case nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "upload requires input.file")
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported file content type %T", v)
	}
}
