package utils

import (
	"crypto/md5"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
)

// GenBatchKey identifies a set of bank addresses regardless of order or repeats.
func GenBatchKey(addresses ...string) string {
	if len(addresses) == 0 {
		return uuid.Nil.String()
	}

	seen := make(map[string]struct{}, len(addresses))
	unique := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	sort.Strings(unique)

	// separator keeps ["ab","c"] and ["a","bc"] apart
	return uuidHash([]byte(strings.Join(unique, ",")))
}

func uuidHash(b []byte) string {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}
