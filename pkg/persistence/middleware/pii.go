package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
)

// Mask replaces every masked value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values whose keys match
// any pattern, in globals, topic contexts and call frame payloads.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, conversationID string, snap *domain.ConversationSnapshot) error {
	// Work on a copy; the snapshot may still be referenced by the caller.
	cloned := *snap
	cloned.Globals = m.masked(snap.Globals)
	cloned.CallStack = make([]domain.CallFrame, len(snap.CallStack))
	for i, f := range snap.CallStack {
		f.ResumePayload = m.masked(f.ResumePayload)
		cloned.CallStack[i] = f
	}
	cloned.Topics = make([]domain.TopicSnapshot, len(snap.Topics))
	for i, ts := range snap.Topics {
		ts.Context = m.masked(ts.Context)
		cloned.Topics[i] = ts
	}
	return m.next.Save(ctx, conversationID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, conversationID string) (*domain.ConversationSnapshot, error) {
	return m.next.Load(ctx, conversationID)
}

func (m *piiMiddleware) Delete(ctx context.Context, conversationID string) error {
	return m.next.Delete(ctx, conversationID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) masked(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := deepCopyMap(in)
	maskMap(out, m.patterns)
	return out
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies maps and slices. Structs are converted to their JSON
// shape so that field names can be matched.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case nil:
		return nil
	}
	if !isStructLike(reflect.TypeOf(v)) {
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var shaped any
	if err := json.Unmarshal(data, &shaped); err != nil {
		return v
	}
	if _, isMap := shaped.(map[string]any); !isMap {
		if _, isSlice := shaped.([]any); !isSlice {
			return v
		}
	}
	return deepCopy(shaped)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if !masked {
			maskValue(v, patterns)
		}
	}
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return true
	case reflect.Slice, reflect.Array:
		return isStructLike(t.Elem())
	}
	return false
}

func maskValue(v any, patterns []*regexp.Regexp) {
	switch val := v.(type) {
	case map[string]any:
		maskMap(val, patterns)
	case []any:
		for _, item := range val {
			maskValue(item, patterns)
		}
	}
}
