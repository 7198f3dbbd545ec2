package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication. Everything under events.
// is fanned out to websocket clients.

// TopicEventsQuery carries the lifecycle and stream events of one run.
func TopicEventsQuery(runID string) string {
	return fmt.Sprintf("events.query.%s", runID)
}

// TopicEventsSchedule carries scheduler events for one schedule.
func TopicEventsSchedule(scheduleID string) string {
	return fmt.Sprintf("events.schedule.%s", scheduleID)
}

const (
	TopicEventsAll       = "events.>"
	TopicEventsKnowledge = "events.knowledge"
	TopicEventsConfig    = "events.config"
)
