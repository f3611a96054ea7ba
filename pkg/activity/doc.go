/*
Package activity implements the executable steps of a topic.

Leaves (Simple, Message, Delay, End, Reset, SetVariable, Prompt, Save,
TriggerTopic, EventTrigger and Card) do one thing each. Containers (Composite,
Conditional, Repeat, ForEach, Parallel and Switch) own their children and
forward every child bus into their own, so a host subscribed at the top sees
each event exactly once.

Every activity embeds Base, which enforces the transition table and publishes
a lifecycle event per state change. A suspended activity is resumed by calling
Run again on the same instance with the delivered input; containers route that
input to the waiting child only and keep going in the same call.
*/
package activity
