package zadavalnik

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDocumentBytes is the largest document attachment accepted
	MaxDocumentBytes = 500 * 1024
	// MaxDocumentWords is the largest word count accepted in a document
	MaxDocumentWords = 50000
)

// DocumentError is a user-facing rejection of a document attachment.
// It is raised before any backend call and causes no state change.
type DocumentError struct {
	Reason string
}

func (e *DocumentError) Error() string {
	return e.Reason
}

// CheckDeclaredDocument validates document metadata as declared by the
// transport before the file is downloaded, so oversized or non-text files
// are refused without fetching them
func CheckDeclaredDocument(mimeType, filename string, sizeBytes int64) error {
	if sizeBytes > MaxDocumentBytes {
		return &DocumentError{Reason: fmt.Sprintf("The document is too large: %d bytes. The limit is %d KB.", sizeBytes, MaxDocumentBytes/1024)}
	}
	if !isPlainText(mimeType, filename) {
		return &DocumentError{Reason: "Only plain text documents (.txt) are supported."}
	}
	return nil
}

// DocumentText validates downloaded document content and returns it as a
// string suitable for embedding in the first user turn
func DocumentText(data []byte) (string, error) {
	if len(data) > MaxDocumentBytes {
		return "", &DocumentError{Reason: fmt.Sprintf("The document is too large: %d bytes. The limit is %d KB.", len(data), MaxDocumentBytes/1024)}
	}
	if !utf8.Valid(data) {
		return "", &DocumentError{Reason: "The document could not be read as UTF-8 text."}
	}
	text := string(data)
	if words := len(strings.Fields(text)); words > MaxDocumentWords {
		return "", &DocumentError{Reason: fmt.Sprintf("The document has too many words: %d. The limit is %d.", words, MaxDocumentWords)}
	}
	return text, nil
}

func isPlainText(mimeType, filename string) bool {
	if strings.HasPrefix(mimeType, "text/plain") {
		return true
	}
	// Some clients omit the mime type; fall back on the extension
	return mimeType == "" && strings.HasSuffix(strings.ToLower(filename), ".txt")
}
