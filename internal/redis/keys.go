package redisx

import "fmt"

const ns = "lahja:v1"

func KeyRegionSlots(region string) string {
	return fmt.Sprintf("%s:region:%s:slots", ns, region)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelDocsChanged() string {
	return ns + ":docs:changed"
}
