package cache

import (
	"fmt"
)

// JobKeyPrefix namespaces analysis job documents.
const JobKeyPrefix = "analysis:"

func JobKey(jobID string) string {
	return JobKeyPrefix + jobID
}

func RateLimitKey(identity string) string {
	return fmt.Sprintf("rl:%s", identity)
}

func OrgConnectionsKey(orgID string) string {
	return fmt.Sprintf("connections:org:%s", orgID)
}
