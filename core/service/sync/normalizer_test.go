package sync

import (
	"testing"

	"mailmirror/core/domain"
)

func TestNormalizeGmailSentAndInbox(t *testing.T) {
	got := Normalize(domain.FolderDescriptor{Path: "[Gmail]/Sent Mail", ProviderID: "gmail"})
	if got != domain.FolderSent {
		t.Fatalf("got %q want %q", got, domain.FolderSent)
	}

	got = Normalize(domain.FolderDescriptor{Path: "INBOX"})
	if got != domain.FolderInbox {
		t.Fatalf("got %q want %q", got, domain.FolderInbox)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	f := domain.FolderDescriptor{Path: "Projects", Flags: []string{"\\HasNoChildren"}}
	a := Normalize(f)
	b := Normalize(f)
	if a != b {
		t.Fatalf("normalize not deterministic: %q vs %q", a, b)
	}
}

func TestNormalizeSpecialUseFlag(t *testing.T) {
	got := Normalize(domain.FolderDescriptor{Path: "Some Weird Name", SpecialUse: "\\Trash"})
	if got != domain.FolderTrash {
		t.Fatalf("got %q want %q", got, domain.FolderTrash)
	}
}

func TestSortByPriority(t *testing.T) {
	in := []string{"Trash", "INBOX", "Projects", "Sent"}
	SortByPriority(in)
	want := []string{"INBOX", "Sent", "Projects", "Trash"}
	for i := range want {
		if in[i] != want[i] {
			t.Fatalf("priority sort mismatch at %d: got %v want %v", i, in, want)
		}
	}
}

func TestShouldSyncFolderExclusions(t *testing.T) {
	if ShouldSyncFolder("Notes", "Notes") {
		t.Fatal("Notes should be excluded")
	}
	if !ShouldSyncFolder(domain.FolderInbox, "INBOX") {
		t.Fatal("INBOX must never be excluded")
	}
}

func TestShouldSyncFolderExcludesGmailAllMailByRawPath(t *testing.T) {
	canonical := Normalize(domain.FolderDescriptor{Path: "[Gmail]/All Mail"})
	if canonical != domain.FolderArchive {
		t.Fatalf("expected All Mail to normalize to Archive, got %q", canonical)
	}
	if ShouldSyncFolder(canonical, "[Gmail]/All Mail") {
		t.Fatal("[Gmail]/All Mail must stay excluded to avoid duplicates, even though it normalizes to Archive")
	}
}

func TestSortDescriptorsByPriorityRawPaths(t *testing.T) {
	in := []domain.FolderDescriptor{
		{Path: "[Gmail]/Trash"},
		{Path: "INBOX"},
		{Path: "Projects"},
		{Path: "[Gmail]/Sent Mail"},
	}
	SortDescriptorsByPriority(in)
	want := []string{"INBOX", "[Gmail]/Sent Mail", "Projects", "[Gmail]/Trash"}
	for i := range want {
		if in[i].Path != want[i] {
			t.Fatalf("priority sort mismatch at %d: got %v want %v", i, in, want)
		}
	}
}

func TestNormalizeBeforeFilterRetainsInbox(t *testing.T) {
	// A raw path containing "Journal" that nonetheless carries the
	// \Inbox special-use flag must normalize to INBOX and survive the
	// exclusion filter — Open Question (c).
	f := domain.FolderDescriptor{Path: "My Journal Mailbox", SpecialUse: "\\Inbox"}
	canonical := Normalize(f)
	if canonical != domain.FolderInbox {
		t.Fatalf("expected INBOX, got %q", canonical)
	}
	if !ShouldSyncFolder(canonical, f.Path) {
		t.Fatal("normalized INBOX must not be excluded even though the raw path matched an exclusion substring")
	}
}
