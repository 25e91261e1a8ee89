package incident

import (
	"fmt"
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	rutPattern   = regexp.MustCompile(`^\d{7,8}-?[\dkK]?$`)
)

// ValidateStructure performs the structural completeness check that gates a
// save: format version, non-empty identification fields, well-formed
// reporter contact data and a usable taxonomy list. Returns the full list
// of violations, never just the first.
func ValidateStructure(d *Document) []string {
	var errs []string
	if d == nil {
		return []string{"documento vacío"}
	}
	if d.Metadata.FormatVersion != FormatVersion {
		errs = append(errs, fmt.Sprintf("versión de formato incorrecta: %q", d.Metadata.FormatVersion))
	}
	if d.Metadata.UniqueIndex == "" {
		errs = append(errs, "falta índice único en metadata")
	}
	if d.Reporter.Name == "" {
		errs = append(errs, "nombre del informante es requerido")
	}
	if d.Reporter.Email == "" {
		errs = append(errs, "email del informante es requerido")
	} else if !emailPattern.MatchString(d.Reporter.Email) {
		errs = append(errs, "email del informante no es válido")
	}
	if d.Reporter.RUT != "" && !rutPattern.MatchString(d.Reporter.RUT) {
		errs = append(errs, "RUT del informante no es válido")
	}
	if d.Classification.Title == "" {
		errs = append(errs, "título del incidente es requerido")
	}
	if d.Classification.IncidentDate == "" {
		errs = append(errs, "fecha del incidente es requerida")
	}
	if d.Taxonomies.Set.Selected == nil {
		errs = append(errs, "taxonomías debe tener lista 'seleccionadas'")
	}
	return errs
}

// ValidateTaxonomyIntegrity checks every active taxonomy slot: present and
// unique UID, present and unique orden, and evidence numbers matching
// 4.4.<orden>.<position among that slot's active evidence>. Mismatches are
// reported, never corrected; RenumberEvidence is the explicit repair.
func ValidateTaxonomyIntegrity(d *Document) []string {
	var errs []string
	seenUIDs := map[string]struct{}{}
	seenOrders := map[int]struct{}{}
	for i := range d.Taxonomies.Set.Selected {
		tax := &d.Taxonomies.Set.Selected[i]
		if tax.Status != StatusActive {
			continue
		}
		if tax.UID == "" {
			errs = append(errs, fmt.Sprintf("taxonomía %d: falta id_unico", i+1))
		} else if _, dup := seenUIDs[tax.UID]; dup {
			errs = append(errs, fmt.Sprintf("id_unico duplicado: %s", tax.UID))
		}
		seenUIDs[tax.UID] = struct{}{}
		if tax.Order <= 0 {
			errs = append(errs, fmt.Sprintf("taxonomía %d: falta numero_orden", i+1))
		} else if _, dup := seenOrders[tax.Order]; dup {
			errs = append(errs, fmt.Sprintf("numero_orden duplicado: %d", tax.Order))
		}
		seenOrders[tax.Order] = struct{}{}
		pos := 0
		for j := range tax.Evidence.Items {
			ev := &tax.Evidence.Items[j]
			if ev.Status != StatusActive {
				continue
			}
			pos++
			expected := fmt.Sprintf("%s.%d", taxonomyPrefix(tax.Order), pos)
			if ev.Number != expected {
				errs = append(errs, fmt.Sprintf("numeración incorrecta: esperado %s, encontrado %s", expected, ev.Number))
			}
		}
	}
	return errs
}

// ValidateSectionEvidence checks that active evidence numbers in the flat
// sections match <prefix>.<position among active items>.
func ValidateSectionEvidence(d *Document) []string {
	var errs []string
	for _, sec := range sectionEvidenceKeys {
		list := d.sectionEvidence(sec)
		if list == nil {
			continue
		}
		pos := 0
		for i := range list.Items {
			ev := &list.Items[i]
			if ev.Status != StatusActive {
				continue
			}
			pos++
			expected := fmt.Sprintf("%s.%d", sectionPrefixes[sec], pos)
			if ev.Number != expected {
				errs = append(errs, fmt.Sprintf("sección %s: esperado %s, encontrado %s", sec, expected, ev.Number))
			}
		}
	}
	return errs
}

// ANCI report kinds.
const (
	ReportEarlyAlert  = "alerta_temprana"
	ReportPreliminary = "preliminar"
	ReportFull        = "completo"
	ReportFinal       = "final"
)

// ValidateANCIFields returns the missing mandatory fields for the given
// report kind. The early-alert set is the regulatory minimum; the other
// kinds add to it.
func ValidateANCIFields(d *Document, kind string) []string {
	var missing []string
	if d.Reporter.Company.LegalName == "" {
		missing = append(missing, "razón social de la empresa")
	}
	if d.Reporter.Company.EntityType == "" {
		missing = append(missing, "tipo de entidad (OIV/PSE)")
	}
	if d.Reporter.Company.EssentialSector == "" {
		missing = append(missing, "sector esencial")
	}
	if d.Reporter.Emergency.Name == "" {
		missing = append(missing, "nombre del reportante ANCI")
	}
	if d.Reporter.Emergency.Phone247 == "" {
		missing = append(missing, "teléfono de emergencia 24/7")
	}
	if d.Reporter.Emergency.SecurityEmail == "" {
		missing = append(missing, "email oficial de seguridad")
	}
	if d.Classification.Description == "" {
		missing = append(missing, "descripción del incidente")
	}
	if len(d.Classification.AffectedSystems) == 0 {
		missing = append(missing, "sistemas afectados")
	}
	if d.Classification.GeographicScope == "" {
		missing = append(missing, "alcance geográfico")
	}
	if d.Classification.CurrentStateNotes == "" {
		missing = append(missing, "descripción del estado actual")
	}
	if len(d.ActiveTaxonomies()) == 0 {
		missing = append(missing, "al menos una taxonomía ANCI")
	}
	if d.Response.Containment == "" {
		missing = append(missing, "medidas de contención aplicadas")
	}
	switch kind {
	case ReportPreliminary, ReportFull, ReportFinal:
		if d.RootCause.PreliminaryAnalysis == "" {
			missing = append(missing, "análisis preliminar")
		}
	}
	if kind == ReportFull || kind == ReportFinal {
		if d.Technical.AttackVector == "" {
			missing = append(missing, "vector de ataque")
		}
	}
	if kind == ReportFinal {
		if d.Lessons.CorrectiveActions == "" {
			missing = append(missing, "acciones correctivas")
		}
	}
	return missing
}
