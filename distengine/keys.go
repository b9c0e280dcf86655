package distengine

import "fmt"

// Key layout for the Redis-backed distributed engine. All keys are
// namespaced under a single configurable prefix so one Redis instance
// can host several independently-keyed deployments.
//
//	{prefix}queue                 -- LPUSH/BRPOP list of pending task IDs
//	{prefix}{task_id}:job         -- authoritative queue-side job record (hash-of-state JSON), TTL
//	{prefix}{task_id}:metadata    -- durable projection of the full Task, TTL
//	{prefix}{task_id}:result_key  -- opaque pointer to the stored result payload, TTL

func (e *Engine) queueKey() string {
	return e.prefix + "queue"
}

func (e *Engine) jobKey(taskID string) string {
	return fmt.Sprintf("%s%s:job", e.prefix, taskID)
}

func (e *Engine) metadataKey(taskID string) string {
	return fmt.Sprintf("%s%s:metadata", e.prefix, taskID)
}

func (e *Engine) resultKey(taskID string) string {
	return fmt.Sprintf("%s%s:result_key", e.prefix, taskID)
}
