package handlers

import (
	"testing"
)

func TestListReports(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub-001_T1w.html", "<html></html>")
	writeFile(t, root, "sub-001_ses-01_task-rest_bold.html", "<html></html>")
	writeFile(t, root, "sub-002.html", "<html></html>")
	writeFile(t, root, "group_bold.html", "<html></html>")
	writeFile(t, root, "sub-001/figures/plot.svg", "<svg/>") // dir, skipped
	writeFile(t, root, "dataset.json", "{}")                 // not a report

	reports := listReports(root, "/mriqc_files/")
	if len(reports) != 4 {
		t.Fatalf("got %d reports, want 4", len(reports))
	}

	// Group reports sort first.
	if !reports[0].Group || reports[0].Name != "group_bold.html" {
		t.Errorf("first report = %+v, want group_bold.html", reports[0])
	}
	for _, rep := range reports[1:] {
		if rep.Group {
			t.Errorf("%s classified as group", rep.Name)
		}
	}

	bySubject := map[string]int{}
	for _, rep := range reports {
		if rep.Subject != "" {
			bySubject[rep.Subject]++
		}
	}
	if bySubject["sub-001"] != 2 || bySubject["sub-002"] != 1 {
		t.Errorf("subject attribution = %v", bySubject)
	}

	if reports[1].Path != "/mriqc_files/"+reports[1].Name {
		t.Errorf("Path = %q", reports[1].Path)
	}
}

func TestListReportsMissingRoot(t *testing.T) {
	if reports := listReports("/no/such/dir", "/mriqc_files/"); reports != nil {
		t.Errorf("got %v, want nil", reports)
	}
}

func TestBuildBreadcrumbs(t *testing.T) {
	crumbs := buildBreadcrumbs("/subjects/sub-001")
	want := []struct{ name, path string }{
		{"home", "/"},
		{"subjects", "/subjects"},
		{"sub-001", "/subjects/sub-001"},
	}
	if len(crumbs) != len(want) {
		t.Fatalf("got %d crumbs, want %d", len(crumbs), len(want))
	}
	for i, w := range want {
		if crumbs[i].Name != w.name || crumbs[i].Path != w.path {
			t.Errorf("crumb %d = %+v, want %+v", i, crumbs[i], w)
		}
	}
}

func TestSubjectNameValidation(t *testing.T) {
	valid := []string{"sub-001", "sub-ABC123"}
	invalid := []string{"sub-", "sub-001/..", "anything", "sub-001_extra", ".."}
	for _, s := range valid {
		if !subjectNameRe.MatchString(s) {
			t.Errorf("%q should be accepted", s)
		}
	}
	for _, s := range invalid {
		if subjectNameRe.MatchString(s) {
			t.Errorf("%q should be rejected", s)
		}
	}
}
