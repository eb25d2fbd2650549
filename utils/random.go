package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of n random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// TicketCode generates a collision-resistant ticket code of the form
// TKT-<base36 millis>-<random>. The code is assigned to a registration at
// most once, on its first successful payment.
func TicketCode() (string, error) {
	suffix, err := GenerateCode(3)
	if err != nil {
		return "", err
	}

	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return fmt.Sprintf("TKT-%s-%s", ts, suffix), nil
}
