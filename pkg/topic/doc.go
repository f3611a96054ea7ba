/*
Package topic runs named sequences of activities.

A Topic owns its activities, a cursor and one workflow.Context per activation.
Step delivers input to the waiting activity only and then keeps going until an
activity suspends or the topic ends. Registry and Catalog give the
orchestrator per-conversation topic instances, and KeywordMatcher is the
default intent matcher.
*/
package topic
