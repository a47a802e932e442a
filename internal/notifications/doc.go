// Package notifications publishes pipeline events to an ntfy topic.
//
// Workflow components report moments worth surfacing (stage completion,
// queue start/finish, failures, review holds) through Service.Publish.
// Each event category can be toggled in configuration, and repeated
// messages inside the dedup window are dropped so a crash loop does not
// flood the topic. When no topic is configured every publish is a noop.
package notifications
