package domain

import "maps"

// RenderMode tells the UI how to place a card relative to earlier ones.
type RenderMode string

const (
	// RenderAppend adds the card below previous content.
	RenderAppend RenderMode = "append"
	// RenderReplace swaps any card already shown under the same CardID.
	RenderReplace RenderMode = "replace"
)

// CardPayload is the opaque UI document the engine asks the host to render.
// The engine never interprets Document beyond copying it.
type CardPayload struct {
	CardID   string              `json:"card_id"`
	Mode     RenderMode          `json:"mode"`
	Document map[string]any      `json:"document"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// Clone returns a copy safe for mutation by decorators.
func (c CardPayload) Clone() CardPayload {
	out := c
	out.Document = cloneDocument(c.Document)
	if c.Errors != nil {
		out.Errors = make(map[string][]string, len(c.Errors))
		for k, v := range c.Errors {
			out.Errors[k] = append([]string(nil), v...)
		}
	}
	return out
}

// HasErrors reports whether the card carries validation annotations.
func (c CardPayload) HasErrors() bool {
	return len(c.Errors) > 0
}

func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	out := maps.Clone(doc)
	for k, v := range out {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneDocument(typed)
		case []any:
			cp := make([]any, len(typed))
			for i, item := range typed {
				if m, ok := item.(map[string]any); ok {
					cp[i] = cloneDocument(m)
				} else {
					cp[i] = item
				}
			}
			out[k] = cp
		}
	}
	return out
}

// FieldError is a semantic validation failure on one model member.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// GroupFieldErrors folds a flat error list into the card annotation shape.
func GroupFieldErrors(errs []FieldError) map[string][]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, e := range errs {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// InputRequest describes a lightweight prompt that is not a full card.
type InputRequest struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Default string   `json:"default,omitempty"`
}
