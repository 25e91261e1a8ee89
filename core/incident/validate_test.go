package incident

import (
	"strings"
	"testing"
	"time"
)

func validDoc(now time.Time) *Document {
	doc := New(now, "u")
	doc.Metadata.UniqueIndex = "1_12345678_1_1_PRUEBA"
	doc.Reporter.Name = "Ana Soto"
	doc.Reporter.Email = "ana@empresa.cl"
	doc.Classification.Title = "Intrusión detectada"
	doc.Classification.IncidentDate = "2025-03-10"
	return doc
}

func TestValidateStructure(t *testing.T) {
	now := time.Now()
	if errs := ValidateStructure(validDoc(now)); len(errs) != 0 {
		t.Fatalf("valid document rejected: %v", errs)
	}

	doc := validDoc(now)
	doc.Reporter.Name = ""
	doc.Reporter.Email = "sin-arroba"
	doc.Classification.Title = ""
	errs := ValidateStructure(doc)
	if len(errs) != 3 {
		t.Fatalf("expected all violations reported, got %v", errs)
	}

	doc = validDoc(now)
	doc.Reporter.RUT = "no-es-rut"
	if errs := ValidateStructure(doc); len(errs) != 1 || !strings.Contains(errs[0], "RUT") {
		t.Fatalf("rut validation: %v", errs)
	}

	if errs := ValidateStructure(nil); len(errs) != 1 {
		t.Fatalf("nil document: %v", errs)
	}
}

func TestValidateTaxonomyIntegrityReportsOnly(t *testing.T) {
	now := time.Now()
	doc := validDoc(now)
	tax := doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 1, Name: "Malware"}, now)
	doc.AddTaxonomyEvidence(tax.UID, EvidenceItem{FileName: "a.pdf"}, now)

	if errs := ValidateTaxonomyIntegrity(doc); len(errs) != 0 {
		t.Fatalf("consistent document rejected: %v", errs)
	}

	// Corrupt the number by hand and check the validator reports without
	// touching the document.
	tax.Evidence.Items[0].Number = "4.4.1.9"
	errs := ValidateTaxonomyIntegrity(doc)
	if len(errs) != 1 {
		t.Fatalf("expected one violation, got %v", errs)
	}
	if tax.Evidence.Items[0].Number != "4.4.1.9" {
		t.Fatal("validator must not rewrite numbers")
	}
	// Running it twice yields the same result.
	again := ValidateTaxonomyIntegrity(doc)
	if len(again) != 1 || again[0] != errs[0] {
		t.Fatalf("validator not idempotent: %v vs %v", errs, again)
	}

	tax.Order = 0
	if errs := ValidateTaxonomyIntegrity(doc); len(errs) == 0 {
		t.Fatal("missing numero_orden not reported")
	}
}

func TestValidateSectionEvidence(t *testing.T) {
	now := time.Now()
	doc := validDoc(now)
	doc.AddSectionEvidence("3", EvidenceItem{FileName: "a.pdf"}, now)
	doc.AddSectionEvidence("3", EvidenceItem{FileName: "b.pdf"}, now)

	if errs := ValidateSectionEvidence(doc); len(errs) != 0 {
		t.Fatalf("consistent numbering rejected: %v", errs)
	}

	doc.Impact.Evidence.Items[0].Status = StatusRemoved
	errs := ValidateSectionEvidence(doc)
	if len(errs) != 1 || !strings.Contains(errs[0], "3.4.1") {
		t.Fatalf("gap not reported: %v", errs)
	}

	doc.RenumberEvidence()
	if errs := ValidateSectionEvidence(doc); len(errs) != 0 {
		t.Fatalf("renumber did not repair: %v", errs)
	}
}

func TestValidateANCIFields(t *testing.T) {
	now := time.Now()
	doc := validDoc(now)
	doc.Reporter.Company = CompanyInfo{LegalName: "Empresa SpA", EntityType: "OIV", EssentialSector: "Energía"}
	doc.Reporter.Emergency = EmergencyContact{Name: "Juan Pérez", Phone247: "+56911112222", SecurityEmail: "soc@empresa.cl"}
	doc.Classification.Description = "Acceso no autorizado"
	doc.Classification.AffectedSystems = []string{"ERP"}
	doc.Classification.GeographicScope = "Nacional"
	doc.Classification.CurrentStateNotes = "Contenido"
	doc.Response.Containment = "Segmentación de red"
	doc.AddTaxonomy(TaxonomyInput{TaxonomyID: 1, Name: "Malware"}, now)

	if missing := ValidateANCIFields(doc, ReportEarlyAlert); len(missing) != 0 {
		t.Fatalf("early alert should pass: %v", missing)
	}
	// Later reports require fields the early alert does not.
	if missing := ValidateANCIFields(doc, ReportPreliminary); len(missing) != 1 {
		t.Fatalf("preliminar should miss analisis preliminar: %v", missing)
	}
	doc.RootCause.PreliminaryAnalysis = "Credenciales filtradas"
	doc.Technical.AttackVector = "Phishing dirigido"
	if missing := ValidateANCIFields(doc, ReportFull); len(missing) != 0 {
		t.Fatalf("completo should pass: %v", missing)
	}
	if missing := ValidateANCIFields(doc, ReportFinal); len(missing) != 1 {
		t.Fatalf("final should miss acciones correctivas: %v", missing)
	}
}
