package secrets

import (
	"context"
	"regexp"
)

var refPattern = regexp.MustCompile(`\$\{\{\s*secrets\.([A-Za-z0-9_.-]+)\s*\}\}`)

// Resolver substitutes ${{secrets.KEY}} references in tool configuration
// values with decrypted secrets from a Vault.
type Resolver struct {
	vault Vault
}

// NewResolver returns a Resolver backed by the given vault.
func NewResolver(v Vault) *Resolver {
	return &Resolver{vault: v}
}

// ResolveDocument walks a configuration document and substitutes secret
// references in every string value, including nested documents and arrays.
// Missing secrets fail resolution so a tool never runs with a literal
// reference in place of a credential.
func (r *Resolver) ResolveDocument(ctx context.Context, doc map[string]any) (map[string]any, error) {
	if len(doc) == 0 {
		return doc, nil
	}
	resolved, err := r.resolveValue(ctx, doc)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

// ResolveString substitutes secret references in a single string.
func (r *Resolver) ResolveString(ctx context.Context, s string) (string, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var out []byte
	last := 0
	for _, m := range matches {
		key := s[m[2]:m[3]]
		value, err := r.vault.Get(ctx, key)
		if err != nil {
			return "", err
		}
		out = append(out, s[last:m[0]]...)
		out = append(out, value...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}

func (r *Resolver) resolveValue(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.ResolveString(ctx, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			resolved, err := r.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			resolved, err := r.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
