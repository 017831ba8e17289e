package tool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GeneratePaymentReference builds the initial transaction reference for a
// subscription payment. The gateway may replace it with its own reference
// at initialization; uniqueness is enforced by the payments table either way.
func GeneratePaymentReference() string {
	return fmt.Sprintf("SUB-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
