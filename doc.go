/*
Package tendril is a conversational workflow engine built from topics and activities.

A conversation is decomposed into Topics, each an ordered sequence of
Activities run by a resumable interpreter loop. An activity either completes
synchronously, suspends waiting for user input (a Card, an EventTrigger) or
suspends waiting for another topic (a TriggerTopic in wait mode). Containers
(Composite, Conditional, Repeat, ForEach, Parallel, Switch) nest activities
and forward their events upwards, so the host sees every message and card no
matter how deep it was produced.

# Concept

Topics are described once in a Catalog and built fresh for every
conversation. The Engine routes free input to a topic by intent, hands input
to the suspended activity on later turns and keeps the call stack that lets a
topic hand control to another and regain it with the callee's results.

# Usage

	cat, err := topic.NewCatalog(topic.Definition{
		Name:     "greeting",
		Keywords: []string{"hello", "hi"},
		Build: func(env topic.Env) ([]activity.Activity, error) {
			hello, err := activity.NewMessage("hello", "Hi! What's your name?")
			if err != nil {
				return nil, err
			}
			card, err := activity.NewCard[Profile]("profile", activity.CardConfig{
				Rules: binding.Rules{Required: []string{"name"}},
			})
			if err != nil {
				return nil, err
			}
			return []activity.Activity{hello, card}, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	eng, err := tendril.New(cat)
	if err != nil {
		log.Fatal(err)
	}

	turn, err := eng.Send(ctx, "conversation-1", "hello")
	// turn.Replies holds the message and the card; turn.Waiting is true.
	turn, err = eng.Send(ctx, "conversation-1", map[string]any{"name": "Ana"})
*/
package tendril
