// Package validator checks a built topic registry for broken references.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/topic"
)

// Required names topics the engine starts on its own, such as the fallback.
type Required []string

type parent interface {
	Children() []activity.Activity
}

// ValidateRegistry crawls every topic and reports triggers to unknown topics,
// duplicate activity ids and activities that can never run because an end
// or reset precedes them. Missing required topics are reported too.
func ValidateRegistry(reg *topic.Registry, required Required) error {
	var problems []string

	for _, name := range required {
		if name == "" {
			continue
		}
		if _, ok := reg.Topic(name); !ok {
			problems = append(problems, fmt.Sprintf("required topic '%s' is not registered", name))
		}
	}

	for _, t := range reg.All() {
		seen := make(map[string]bool)
		var walk func(acts []activity.Activity, sequential bool)
		walk = func(acts []activity.Activity, sequential bool) {
			stopped := ""
			for _, a := range acts {
				if stopped != "" && sequential {
					problems = append(problems, fmt.Sprintf("%s: activity '%s' is unreachable after '%s'", t.Name(), a.ID(), stopped))
				}
				if seen[a.ID()] {
					problems = append(problems, fmt.Sprintf("%s: duplicate activity id '%s'", t.Name(), a.ID()))
				}
				seen[a.ID()] = true

				if trig, ok := a.(*activity.TriggerTopic); ok {
					if _, found := reg.Topic(trig.Target()); !found {
						problems = append(problems, fmt.Sprintf("%s: activity '%s' triggers missing topic '%s'", t.Name(), a.ID(), trig.Target()))
					}
				}
				if p, ok := a.(parent); ok {
					_, isParallel := a.(*activity.Parallel)
					walk(p.Children(), !isParallel)
				}
				switch a.Capabilities().Kind {
				case activity.KindEnd, activity.KindReset:
					if stopped == "" {
						stopped = a.ID()
					}
				}
			}
		}
		walk(t.Activities(), true)
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}
