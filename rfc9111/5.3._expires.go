package rfc9111

import (
	"net/http"
	"time"
)

// Expires returns the value of the "Expires" header field,
// along with a boolean indicating whether the field was present.
//
// §  5.3.  Expires
// §
// §     The "Expires" response header field gives the date/time after which
// §     the response is considered stale.  See Section 4.2 for further
// §     discussion of the freshness model.
// §
// §       Expires = HTTP-date
// §
// §     A cache recipient MUST interpret invalid date formats, especially the
// §     value "0", as representing a time in the past (i.e., "already
// §     expired").
// §
// §     If a response includes a Cache-Control header field with the max-age
// §     directive (Section 5.2.2.1), a recipient MUST ignore the Expires
// §     header field.
func Expires(header http.Header) (time.Time, bool) {
	values := header.Values("Expires")
	if len(values) == 0 {
		return time.Time{}, false
	}
	// first occurrence is used
	if exp, err := HttpDate(values[0]); err == nil {
		return exp, true
	}
	return time.Unix(0, 0).UTC(), true
}
