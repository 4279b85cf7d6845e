package service

import (
	"fmt"

	"github.com/google/uuid"
)

func stockKey(id uuid.UUID) string {
	return fmt.Sprintf("vcd:%s:stock", id)
}

// stockBuiltKey marks that the queue was built at least once. Redis deletes
// a list when its last element is popped, so the list key alone cannot tell
// a drained queue from one that was never built or was lost.
func stockBuiltKey(id uuid.UUID) string {
	return fmt.Sprintf("vcd:%s:stock:built", id)
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("vcd:%s:lock", id)
}

func ipMarkerKey(id uuid.UUID, ip string) string {
	return fmt.Sprintf("vcd:%s:receive:ip:%s", id, ip)
}

func ipMarkerPattern(id uuid.UUID) string {
	return fmt.Sprintf("vcd:%s:receive:ip:*", id)
}

func passThroughKey(username, ip string) string {
	return fmt.Sprintf("tcaptcha:pass:%s:%s", username, ip)
}

func blacklistKey(username string) string {
	return fmt.Sprintf("tcaptcha:blacklist:%s", username)
}
