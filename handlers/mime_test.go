package handlers

import (
	"testing"
)

func TestMimeForName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"sub-001_T1w.html", "text/html"},
		{"plot.svg", "image/svg+xml"},
		{"sub-001_T1w.json", "application/json"},
		{"participants.tsv", "text/tab-separated-values"},
		{"sub-001_dwi.bval", "text/plain"},
		{"sub-001_T1w.nii", "application/x-nifti"},
		{"sub-001_T1w.nii.gz", "application/gzip"},
		{"README", "text/markdown"},
		{"CHANGES", "text/plain"},
		{".bidsignore", "text/plain"},
		{"mystery.qdat", "application/octet-stream"},
	}
	for _, c := range cases {
		if got := mimeForName(c.name); got != c.want {
			t.Errorf("mimeForName(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestSniffMIME(t *testing.T) {
	root := t.TempDir()

	text := writeFile(t, root, "notes", "plain text notes about the scan session\n")
	if got := sniffMIME(text); got != "text/plain" {
		t.Errorf("text file: got %q", got)
	}

	binary := writeFile(t, root, "blob", "ab\x00cd\x00ef")
	if got := sniffMIME(binary); got != "application/octet-stream" {
		t.Errorf("binary file: got %q", got)
	}
}

func TestMIMEPredicates(t *testing.T) {
	if !isHTML("text/html; charset=utf-8") {
		t.Error("isHTML should ignore parameters")
	}
	if !isImage("image/png") || isImage("text/plain") {
		t.Error("isImage misclassified")
	}
	if !isText("application/json") || isText("application/gzip") {
		t.Error("isText misclassified")
	}
}
