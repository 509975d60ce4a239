package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateETag derives a weak validator for a document shaped for one
// audience. status is the status as rendered, which can change with time
// alone when a deadline passes.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time, status, audience string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%s:%s", id.Hex(), updatedAt.UnixNano(), status, audience)))
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}

// GenerateListETag is GenerateETag for a collection: it changes when the
// newest member or the number of members changes.
func GenerateListETag(latestID primitive.ObjectID, latest time.Time, count int, audience string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%d:%s", latestID.Hex(), latest.UnixNano(), count, audience)))
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}
