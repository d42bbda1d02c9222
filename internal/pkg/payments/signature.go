package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how old a signed timestamp may be before
// the event is treated as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifyWebhookSignature authenticates a raw webhook body against its
// signature header. The header carries a signed timestamp and one or more
// HMAC-SHA256 signatures over "<timestamp>.<body>":
//
//	t=1712239812,v1=5257a869e7ecebeda32affa62cdca3fa51cad7e77a0e56ff536d0ce8e108d8bd
//
// An empty secret fails closed with ErrNotConfigured. Comparison uses
// hmac.Equal, never string comparison.
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string, tolerance time.Duration) error {
	if strings.TrimSpace(secret) == "" {
		return ErrNotConfigured
	}
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return ErrInvalidSignature
	}

	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrInvalidSignature
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func parseSignatureHeader(header string) (int64, []string) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err == nil {
				timestamp = ts
			}
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	return timestamp, signatures
}
