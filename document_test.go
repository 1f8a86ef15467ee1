package zadavalnik

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCheckDeclaredDocument(t *testing.T) {
	if err := CheckDeclaredDocument("text/plain", "notes.txt", 1024); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	// Clients that omit the mime type fall back on the extension
	if err := CheckDeclaredDocument("", "notes.txt", 1024); err != nil {
		t.Fatalf("extension fallback rejected: %v", err)
	}

	if err := CheckDeclaredDocument("text/plain", "notes.txt", 600*1024); err == nil {
		t.Fatal("oversized document accepted")
	}
	if err := CheckDeclaredDocument("application/pdf", "notes.pdf", 1024); err == nil {
		t.Fatal("non-text document accepted")
	}
}

func TestDocumentTextValidation(t *testing.T) {
	text, err := DocumentText([]byte("Chlorophyll absorbs light."))
	if err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	if text != "Chlorophyll absorbs light." {
		t.Fatalf("content altered: %q", text)
	}

	if _, err := DocumentText(bytes.Repeat([]byte("a"), MaxDocumentBytes+1)); err == nil {
		t.Fatal("oversized content accepted")
	}
	if _, err := DocumentText([]byte{0xff, 0xfe, 0xfd}); err == nil {
		t.Fatal("non-UTF-8 content accepted")
	}

	tooManyWords := strings.Repeat("word ", MaxDocumentWords+1)
	if _, err := DocumentText([]byte(tooManyWords)); err == nil {
		t.Fatal("content with too many words accepted")
	}
}

func TestDocumentErrorsAreUserFacing(t *testing.T) {
	_, err := DocumentText([]byte{0xff, 0xfe})
	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %T", err)
	}
	if docErr.Reason == "" {
		t.Fatal("document rejection must carry a user-facing reason")
	}
}
