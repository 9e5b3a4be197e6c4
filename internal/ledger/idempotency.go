package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// transitionKey derives the replay key for one logical transition attempt.
// A retry of the same transition by the same actor hashes to the same key and
// is absorbed by the receipt window instead of failing with ErrInvalidTransition.
func transitionKey(assetID int64, kind, evidenceRef, actor string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s", assetID, kind, evidenceRef, actor)))
	return hex.EncodeToString(sum[:])
}

func newReceiptID() string {
	return "rcpt_" + uuid.NewString()
}
