package billing

import (
	"strings"

	"github.com/google/uuid"
)

const (
	prefixSubscription = "sub_"
	prefixInvoice      = "inv_"
	prefixAddon        = "addon_"
	prefixRefund       = "refund_"
	prefixOffer        = "offer_"
)

// newID returns prefix followed by a random UUID in hex form.
func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
