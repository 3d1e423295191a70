package task

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// IDAlphabet is the suffix alphabet: digits plus uppercase letters with the
// ambiguous I, L, O, U removed.
const IDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IDPattern matches a well-formed task id: a 12-digit UTC timestamp, a dash,
// and at least four alphabet characters.
var IDPattern = regexp.MustCompile(`^\d{12}-[` + IDAlphabet + `]{4,}$`)

// ValidateID rejects ids that do not match IDPattern.
func ValidateID(id string) error {
	if !IDPattern.MatchString(id) {
		return swarmerrors.ErrInvalidTaskID(id)
	}
	return nil
}

// SuffixOf returns the segment after the last dash of a task id, the part
// commit subjects must mention.
func SuffixOf(id string) string {
	if idx := strings.LastIndex(id, "-"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// GenerateID mints a new task id: the current UTC minute plus a random
// suffix of the given length. exists is consulted to avoid collisions;
// generation fails after a bounded number of attempts.
func GenerateID(length int, exists func(id string) bool) (string, error) {
	const attempts = 1000
	if length < 4 {
		return "", swarmerrors.Newf(swarmerrors.CodeInputInvalidTaskID, "id suffix length must be >= 4, got %d", length)
	}
	for range attempts {
		id := Now().UTC().Format("200601021504") + "-" + randomSuffix(length)
		if exists == nil || !exists(id) {
			return id, nil
		}
	}
	return "", swarmerrors.Newf(swarmerrors.CodeInputInvalidTaskID, "failed to generate a unique task id after %d attempts", attempts)
}

// randomSuffix draws suffix characters from UUID entropy. The alphabet has
// 32 characters, so masking five bits per byte keeps the draw uniform.
func randomSuffix(length int) string {
	var b strings.Builder
	b.Grow(length)
	for b.Len() < length {
		u := uuid.New()
		for _, by := range u[:] {
			if b.Len() == length {
				break
			}
			b.WriteByte(IDAlphabet[int(by)&0x1f])
		}
	}
	return b.String()
}

// TaskBranchExample renders the canonical branch name for an id, used in
// error hints.
func TaskBranchExample(prefix, id, slug string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, id, slug)
}
