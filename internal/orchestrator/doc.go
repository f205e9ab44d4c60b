// Package orchestrator drives conversation turns between an operator and a
// tool-using reasoning agent.
//
// Each iteration builds an augmented message list from the prior History,
// the accumulated ContextFields and the new input, invokes the Agent once, and
// folds the answer back into a new State. Step runs one iteration per user
// input. Run keeps iterating on the same input until the answer contains a
// completion phrase or the iteration budget is spent.
//
// State is passed by value. A failed iteration commits nothing: callers get
// back the last fully committed State together with the error.
package orchestrator
