package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/topic"
)

// Overlay contains conversation state to highlight on the graph.
type Overlay struct {
	ActiveTopic string
	Paused      []string
	// Current is the activity the active topic's cursor points at.
	Current string
}

// OverlayFromSnapshot highlights the active topic, its current activity
// and the topics paused on the call stack.
func OverlayFromSnapshot(snap *domain.ConversationSnapshot) *Overlay {
	if snap == nil {
		return nil
	}
	o := &Overlay{ActiveTopic: snap.ActiveTopic, Paused: snap.Paused}
	for _, t := range snap.Topics {
		if t.Name == snap.ActiveTopic && t.Cursor >= 0 && t.Cursor < len(t.Activities) {
			o.Current = t.Activities[t.Cursor].ID
		}
	}
	return o
}

type parent interface {
	Children() []activity.Activity
}

type writer struct {
	sb     strings.Builder
	known  map[string]bool
	calls  []string
	indent string
}

// GenerateMermaid produces a Mermaid flowchart with one subgraph per topic.
// Activities are chained in order, with semantic shapes:
//   - Awaits input (card, prompt, simple): [/Parallelogram/]
//   - Triggers (topic, event): [[Subroutine]]
//   - End and reset: ((Circle))
//   - Dynamic containers (conditional, repeat, switch, foreach): {{Hexagon}}
//   - Default: [Rectangle]
//
// Composite and parallel groups become nested subgraphs. Topic triggers are
// drawn as dotted edges to the target topic.
func GenerateMermaid(topics []*topic.Topic, overlay *Overlay) string {
	w := &writer{known: make(map[string]bool), indent: "    "}
	w.sb.WriteString("graph TD\n")

	for _, t := range topics {
		w.known[t.Name()] = true
	}
	for _, t := range topics {
		id := sanitizeMermaidID(t.Name())
		fmt.Fprintf(&w.sb, "%ssubgraph %s[\"%s\"]\n", w.indent, id, escape(t.Name()))
		w.chain(id, t.Activities())
		fmt.Fprintf(&w.sb, "%send\n", w.indent)
	}
	for _, c := range w.calls {
		w.sb.WriteString(c)
	}

	if overlay != nil {
		w.sb.WriteString("\n    %% Overlay Styles\n")
		w.sb.WriteString("    classDef paused fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		w.sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		seen := make(map[string]bool)
		for _, name := range overlay.Paused {
			if id := sanitizeMermaidID(name); id != "" && !seen[id] {
				seen[id] = true
				fmt.Fprintf(&w.sb, "    class %s paused;\n", id)
			}
		}
		if overlay.ActiveTopic != "" {
			safe := sanitizeMermaidID(overlay.ActiveTopic)
			fmt.Fprintf(&w.sb, "    class %s current;\n", safe)
			if overlay.Current != "" {
				fmt.Fprintf(&w.sb, "    class %s current;\n", sanitizeMermaidID(overlay.ActiveTopic+"."+overlay.Current))
			}
		}
	}
	return w.sb.String()
}

// chain writes acts under prefix and links them in order.
func (w *writer) chain(prefix string, acts []activity.Activity) {
	prev := ""
	for _, a := range acts {
		id := w.node(prefix, a)
		if prev != "" {
			fmt.Fprintf(&w.sb, "%s    %s --> %s\n", w.indent, prev, id)
		}
		prev = id
	}
}

func (w *writer) node(prefix string, a activity.Activity) string {
	id := sanitizeMermaidID(prefix + "." + a.ID())
	caps := a.Capabilities()

	if p, ok := a.(parent); ok {
		fmt.Fprintf(&w.sb, "%s    subgraph %s[\"%s (%s)\"]\n", w.indent, id, escape(a.ID()), caps.Kind)
		inner := w.indent
		w.indent += "    "
		if caps.Kind == activity.KindParallel {
			for _, child := range p.Children() {
				w.node(id, child)
			}
		} else {
			w.chain(id, p.Children())
		}
		w.indent = inner
		fmt.Fprintf(&w.sb, "%s    end\n", w.indent)
		return id
	}

	opener, closer := "[", "]"
	switch {
	case caps.Kind == activity.KindTriggerTopic || caps.Kind == activity.KindEventTrigger:
		opener, closer = "[[", "]]"
	case caps.Kind == activity.KindEnd || caps.Kind == activity.KindReset:
		opener, closer = "((", "))"
	case caps.Container:
		opener, closer = "{{", "}}"
	case caps.AwaitsInput || caps.EmitsCards:
		opener, closer = "[/", "/]"
	}

	label := escape(a.ID())
	if e, ok := a.(*activity.EventTrigger); ok && e.Timeout() > 0 {
		label = fmt.Sprintf("%s <br/> ⏱️ %s", label, e.Timeout())
	}
	fmt.Fprintf(&w.sb, "%s    %s%s\"%s\"%s\n", w.indent, id, opener, label, closer)

	if t, ok := a.(*activity.TriggerTopic); ok {
		arrow := "-. \"hands off\" .->"
		if t.Waits() {
			arrow = "-. \"calls\" .->"
		}
		target := sanitizeMermaidID(t.Target())
		if !w.known[t.Target()] {
			target = fmt.Sprintf("%s_missing[\"%s (missing)\"]", target, escape(t.Target()))
		}
		w.calls = append(w.calls, fmt.Sprintf("    %s %s %s\n", id, arrow, target))
	}
	return id
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
