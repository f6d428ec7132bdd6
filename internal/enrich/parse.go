package enrich

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEmptyAttribute is returned when a lookup yields no attribute text.
var ErrEmptyAttribute = eris.New("enrich: empty attribute")

// ParseAttribute takes the first comma-delimited field of a raw lookup
// response as the cell attribute.
func ParseAttribute(raw string) (string, error) {
	field, _, _ := strings.Cut(raw, ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return "", ErrEmptyAttribute
	}
	return field, nil
}
