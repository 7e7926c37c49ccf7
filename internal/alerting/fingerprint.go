// Package alerting evaluates drift signals against tenant alert rules and
// decides whether matching candidates fire or are suppressed.
package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/clearclaim/driftwatch/internal/models"
)

// Fingerprint identifies an alert condition for cooldown and noise learning.
// It hashes the stable condition identity (product, signal type, entity) and
// deliberately excludes volatile fields like severity or delta, so repeated
// alerts about the same underlying condition share one fingerprint.
func Fingerprint(productName string, typ models.SignalType, entityLabel string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", productName, typ, entityLabel)))
	return hex.EncodeToString(h[:])
}
