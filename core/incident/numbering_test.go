package incident

import (
	"testing"
	"time"
)

func TestTaxonomyOrderNeverReused(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")

	first := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 10, Name: "Malware"}, now)
	second := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 20, Name: "Phishing"}, now)
	if first.Order != 1 || second.Order != 2 {
		t.Fatalf("orders = %d, %d", first.Order, second.Order)
	}

	if !doc.RemoveTaxonomy(first.UID, now) {
		t.Fatal("remove failed")
	}
	third := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 30, Name: "DoS"}, now)
	if third.Order != 3 {
		t.Fatalf("order 1 was reused: got %d", third.Order)
	}

	// The removed slot stays in place with its evidence marked removed.
	if len(doc.Taxonomies.Set.Selected) != 3 {
		t.Fatalf("slots = %d, want 3", len(doc.Taxonomies.Set.Selected))
	}
	if doc.Taxonomies.Set.Selected[0].Status != StatusRemoved {
		t.Fatalf("removed slot status = %q", doc.Taxonomies.Set.Selected[0].Status)
	}
	if len(doc.ActiveTaxonomies()) != 2 {
		t.Fatalf("active = %d, want 2", len(doc.ActiveTaxonomies()))
	}
}

func TestAddTaxonomyIsIdempotentPerCatalogID(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")
	a := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 5, Name: "Malware"}, now)
	b := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 5, Name: "Malware"}, now)
	if a.UID != b.UID {
		t.Fatal("same catalog id must return the existing slot")
	}
	if doc.Taxonomies.Set.GlobalCounter != 1 {
		t.Fatalf("counter advanced on no-op: %d", doc.Taxonomies.Set.GlobalCounter)
	}
}

func TestSectionEvidenceNumbering(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")

	cases := []struct {
		section string
		want    string
	}{
		{"2", "2.5.1"},
		{"3", "3.4.1"},
		{"5", "5.2.1"},
		{"6", "6.4.1"},
	}
	for _, c := range cases {
		num, err := doc.AddSectionEvidence(c.section, EvidenceItem{FileName: "x.pdf"}, now)
		if err != nil {
			t.Fatalf("seccion %s: %v", c.section, err)
		}
		if num != c.want {
			t.Fatalf("seccion %s: numero = %s, want %s", c.section, num, c.want)
		}
	}

	if _, err := doc.AddSectionEvidence("7", EvidenceItem{}, now); err == nil {
		t.Fatal("seccion 7 must reject evidence")
	}
}

func TestRemoveKeepsNumbersUntilRenumber(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")
	n1, _ := doc.AddSectionEvidence("2", EvidenceItem{FileName: "a.pdf"}, now)
	n2, _ := doc.AddSectionEvidence("2", EvidenceItem{FileName: "b.pdf"}, now)
	n3, _ := doc.AddSectionEvidence("2", EvidenceItem{FileName: "c.pdf"}, now)
	if n1 != "2.5.1" || n2 != "2.5.2" || n3 != "2.5.3" {
		t.Fatalf("numbers: %s %s %s", n1, n2, n3)
	}

	if !doc.RemoveSectionEvidence("2", n2, now) {
		t.Fatal("remove failed")
	}
	// Counter-based add: gaps are not closed on removal.
	n4, _ := doc.AddSectionEvidence("2", EvidenceItem{FileName: "d.pdf"}, now)
	if n4 != "2.5.4" {
		t.Fatalf("post-removal number = %s, want 2.5.4", n4)
	}

	doc.RenumberEvidence()
	var got []string
	for _, ev := range doc.Classification.Evidence.Items {
		if ev.Status == StatusActive {
			got = append(got, ev.Number)
		}
	}
	want := []string{"2.5.1", "2.5.2", "2.5.3"}
	if len(got) != len(want) {
		t.Fatalf("active after renumber = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("renumbered[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	// Removed item keeps its last number.
	for _, ev := range doc.Classification.Evidence.Items {
		if ev.Status == StatusRemoved && ev.Number != "2.5.2" {
			t.Fatalf("removed item renumbered to %s", ev.Number)
		}
	}
}

func TestRenumberTaxonomyEvidence(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")
	tax := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 1, Name: "Malware"}, now)
	doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 2, Name: "DoS"}, now)

	first, _ := doc.AddTaxonomyEvidence(tax.UID, EvidenceItem{FileName: "a.pdf"}, now)
	second, _ := doc.AddTaxonomyEvidence(tax.UID, EvidenceItem{FileName: "b.pdf"}, now)
	if first != "4.4.1.1" || second != "4.4.1.2" {
		t.Fatalf("numbers: %s %s", first, second)
	}

	tax.Evidence.Items[0].Status = StatusRemoved
	doc.RenumberEvidence()
	if got := tax.Evidence.Items[1].Number; got != "4.4.1.1" {
		t.Fatalf("renumbered = %s, want 4.4.1.1", got)
	}
}

func TestRestoreEvidence(t *testing.T) {
	now := time.Now()
	doc := New(now, "u")
	tax := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 1, Name: "Malware"}, now)

	if !doc.RestoreEvidence("2", EvidenceItem{Number: "2.5.3", FileName: "old.pdf"}) {
		t.Fatal("restore into seccion 2 failed")
	}
	if doc.Classification.Evidence.Counter != 3 {
		t.Fatalf("counter = %d, want 3", doc.Classification.Evidence.Counter)
	}
	// Next add cannot collide with the restored number.
	num, _ := doc.AddSectionEvidence("2", EvidenceItem{FileName: "new.pdf"}, now)
	if num != "2.5.4" {
		t.Fatalf("post-restore number = %s", num)
	}

	if !doc.RestoreEvidence("4", EvidenceItem{Number: "4.4.1.2", FileName: "tax.pdf"}) {
		t.Fatal("restore into taxonomy slot failed")
	}
	if tax.Evidence.Counter != 2 {
		t.Fatalf("taxonomy counter = %d, want 2", tax.Evidence.Counter)
	}
	if doc.RestoreEvidence("4", EvidenceItem{Number: "4.4.9.1"}) {
		t.Fatal("restore must fail for unknown orden")
	}
	if doc.RestoreEvidence("4", EvidenceItem{Number: "no-es-numero"}) {
		t.Fatal("restore must fail for malformed number")
	}
}
