package core

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// reportNamespace seeds the name-based UUIDs generated for reports that carry
// neither an id nor a message id.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sectriage/reports"))

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportID returns the identifier used for a report's artifact file and
// follow-up thread: the explicit id, else the message id, else a UUID derived
// from the raw report bytes so reprocessing the same file yields the same id.
func ReportID(r models.Report, raw []byte) string {
	for _, candidate := range []string{r.ID, r.MessageID} {
		if id := SanitizeID(candidate); id != "" {
			return id
		}
	}
	return uuid.NewSHA1(reportNamespace, raw).String()
}

// SanitizeID makes id safe for use as a single path segment.
func SanitizeID(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "<>")
	id = unsafeIDChars.ReplaceAllString(id, "_")
	id = strings.Trim(id, "._")
	return id
}
