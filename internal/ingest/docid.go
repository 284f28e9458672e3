package ingest

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/claimcheck/internal/model"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocID returns the DOI of r, or a name-based uuid of its source and title
// when the record has none
func DocID(r model.RawDocumentRecord) string {
	if r.DOI != "" {
		return r.DOI
	}
	name := r.Title
	if name == "" {
		name = r.Abstract
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.Source+"\x00"+name)).String()
}

// SafeID turns a document id into a string usable as a file name
func SafeID(docID string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(docID, "_"), "_")
	if len(s) > 120 {
		s = s[:120]
	}
	if s == "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
	}
	return s
}
