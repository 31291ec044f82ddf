// Package feedback processes feedback payloads arriving as json messages on
// the mesh. A Pipeline subscribes to incoming messages and runs each feedback
// item through validation, enrichment, sentiment analysis and distribution to
// registered sinks. Stage failures are recoverable: the item is dropped with
// a log line and an error event, and the pipeline continues with the next
// message.
package feedback
