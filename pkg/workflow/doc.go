// Package workflow holds the two context scopes activities work against.
//
// A Context belongs to one topic activation and is passed explicitly to
// every activity Run. A Conversation outlives topics; its globals can be
// read from any Context but only written through a Promoter, which is handed
// to the few activities allowed to promote values.
package workflow
