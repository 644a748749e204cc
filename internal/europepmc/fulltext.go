package europepmc

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// extractXMLText pulls the character data out of a full-text XML document
// and collapses all whitespace runs to single spaces. A document that
// cannot be tokenized yields whatever text was read before the error.
func extractXMLText(body []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var parts []string
	for {
		tok, err := decoder.Token()
		if err == io.EOF || err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			if s := strings.TrimSpace(string(cd)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
