package ingress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// idempotencyKey computes the cluster-wide key consulted against the
// Coordinator before processing a webhook delivery, per spec.md §4.11 step 2:
// derived from path+suffix, call_sid, recording URL, call status, tenant id,
// and event kind. Hashed to a fixed-width key so Redis storage cost does not
// grow with payload size.
func idempotencyKey(pathSuffix, callSID, recordingURL, callStatus, tenantID, eventKind string) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s", pathSuffix, callSID, recordingURL, callStatus, tenantID, eventKind)
	sum := sha256.Sum256([]byte(raw))
	return "webhook:" + hex.EncodeToString(sum[:])
}
