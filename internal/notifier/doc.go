// Package notifier delivers reminder messages to users over the chat
// adapter.
//
// Every send goes through one token-bucket limiter shared by all callers, is
// bounded by a per-attempt timeout and is retried with jittered exponential
// backoff. Errors the adapter marks as permanent (blocked bot, deleted chat)
// are not retried.
package notifier
