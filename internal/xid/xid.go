package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// BillNumber returns BILL-YYYYMMDD-NNNN for the calendar date of at, with a
// random suffix in 1000..9999. Uniqueness is enforced by the store.
func BillNumber(at time.Time) string {
	suffix := int64(1000) + at.UnixNano()%9000
	if n, err := rand.Int(rand.Reader, big.NewInt(9000)); err == nil {
		suffix = 1000 + n.Int64()
	}
	return fmt.Sprintf("BILL-%s-%04d", at.Format("20060102"), suffix)
}

// Short is the first eight characters of id, used as a display reference.
func Short(id string) string {
	if i := len(id) - len(uuidSuffix(id)); i > 0 {
		id = id[i:]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func uuidSuffix(id string) string {
	if len(id) < 36 {
		return id
	}
	tail := id[len(id)-36:]
	if _, err := uuid.Parse(tail); err != nil {
		return id
	}
	return tail
}
