package automation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// DedupeKey identifies one (automation, record, transition) triple. A rule
// fires at most once per key.
func DedupeKey(automationID, recordID string, ev domain.TransitionEvent) string {
	field, value := ev.Identity()
	h := sha256.New()
	var n [4]byte
	// Length-prefix each part so ("a","bc") and ("ab","c") never collide.
	for _, part := range []string{automationID, recordID, string(ev.Kind), field, value} {
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
