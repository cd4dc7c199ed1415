// Package notify turns the twin's per-cycle alert set into firing and
// resolved events, applies a per-type cooldown and delivers webhook
// notifications to Slack, Microsoft Teams or plain HTTP endpoints.
package notify
