package incident

import (
	"fmt"
	"time"
)

// Dotted numbering prefixes for the evidence-bearing sections. These match
// the on-disk folder layout, so they never change.
var sectionPrefixes = map[string]string{
	"2": "2.5",
	"3": "3.4",
	"5": "5.2",
	"6": "6.4",
}

var sectionEvidenceKeys = []string{"2", "3", "5", "6"}

func taxonomyPrefix(order int) string {
	return fmt.Sprintf("4.4.%d", order)
}

type EvidenceList struct {
	Counter int            `json:"contador"`
	Items   []EvidenceItem `json:"items"`
}

type EvidenceItem struct {
	Number      string `json:"numero"`
	FilePath    string `json:"archivo"`
	FileName    string `json:"nombre_archivo"`
	Description string `json:"descripcion"`
	HashSHA256  string `json:"hash_sha256"`
	SizeKB      int64  `json:"tamano_kb"`
	UploadedAt  string `json:"fecha_subida"`
	UploadedBy  string `json:"subido_por"`
	Status      string `json:"estado"`
}

func newEvidenceList() EvidenceList {
	return EvidenceList{Items: []EvidenceItem{}}
}

func (l *EvidenceList) active() []*EvidenceItem {
	var out []*EvidenceItem
	for i := range l.Items {
		if l.Items[i].Status == StatusActive {
			out = append(out, &l.Items[i])
		}
	}
	return out
}

func (d *Document) sectionEvidence(section string) *EvidenceList {
	switch section {
	case "2":
		return &d.Classification.Evidence
	case "3":
		return &d.Impact.Evidence
	case "5":
		return &d.Response.Evidence
	case "6":
		return &d.RootCause.Evidence
	}
	return nil
}

// AddSectionEvidence appends an evidence item to one of the flat sections
// (2, 3, 5, 6). The dotted number is taken from the section's monotonic
// counter; positional renumbering is a separate explicit operation.
func (d *Document) AddSectionEvidence(section string, item EvidenceItem, now time.Time) (string, error) {
	list := d.sectionEvidence(section)
	if list == nil {
		return "", fmt.Errorf("seccion %s no soporta evidencias", section)
	}
	list.Counter++
	item.Number = fmt.Sprintf("%s.%d", sectionPrefixes[section], list.Counter)
	if item.Status == "" {
		item.Status = StatusActive
	}
	if item.UploadedAt == "" {
		item.UploadedAt = Timestamp(now)
	}
	list.Items = append(list.Items, item)
	d.Touch(now, item.UploadedBy)
	return item.Number, nil
}

// RemoveSectionEvidence marks the item with the given number as removed.
// Numbers of the remaining items are left untouched; only RenumberEvidence
// regenerates them.
func (d *Document) RemoveSectionEvidence(section, number string, now time.Time) bool {
	list := d.sectionEvidence(section)
	if list == nil {
		return false
	}
	for i := range list.Items {
		if list.Items[i].Number == number && list.Items[i].Status == StatusActive {
			list.Items[i].Status = StatusRemoved
			d.Touch(now, "")
			return true
		}
	}
	return false
}

// RestoreEvidence re-inserts an item that exists in the evidence rows but
// not in the document, keeping its recorded number. Section "4" routes into
// the taxonomy slot named by the number's orden component. The list counter
// is raised past the restored suffix so future additions cannot collide.
func (d *Document) RestoreEvidence(section string, item EvidenceItem) bool {
	if item.Status == "" {
		item.Status = StatusActive
	}
	if section == "4" {
		order, suffix, ok := splitTaxonomyNumber(item.Number)
		if !ok {
			return false
		}
		for i := range d.Taxonomies.Set.Selected {
			t := &d.Taxonomies.Set.Selected[i]
			if t.Order != order {
				continue
			}
			t.Evidence.Items = append(t.Evidence.Items, item)
			if suffix > t.Evidence.Counter {
				t.Evidence.Counter = suffix
			}
			return true
		}
		return false
	}
	list := d.sectionEvidence(section)
	if list == nil {
		return false
	}
	list.Items = append(list.Items, item)
	if suffix := numberSuffix(item.Number); suffix > list.Counter {
		list.Counter = suffix
	}
	return true
}

// splitTaxonomyNumber decomposes "4.4.<orden>.<n>".
func splitTaxonomyNumber(number string) (order, suffix int, ok bool) {
	if n, err := fmt.Sscanf(number, "4.4.%d.%d", &order, &suffix); err != nil || n != 2 {
		return 0, 0, false
	}
	return order, suffix, true
}

func numberSuffix(number string) int {
	i := len(number)
	for i > 0 && number[i-1] >= '0' && number[i-1] <= '9' {
		i--
	}
	if i == len(number) {
		return 0
	}
	n := 0
	for _, c := range number[i:] {
		n = n*10 + int(c-'0')
	}
	return n
}

// RenumberEvidence regenerates every dotted number from the active-item
// positions: section items become <prefix>.<pos>, taxonomy items become
// 4.4.<orden>.<pos>. Removed items keep their last assigned number. This is
// the only operation allowed to rewrite numbers already assigned.
func (d *Document) RenumberEvidence() {
	for _, sec := range sectionEvidenceKeys {
		list := d.sectionEvidence(sec)
		if list == nil {
			continue
		}
		pos := 0
		for i := range list.Items {
			if list.Items[i].Status != StatusActive {
				continue
			}
			pos++
			list.Items[i].Number = fmt.Sprintf("%s.%d", sectionPrefixes[sec], pos)
		}
	}
	for i := range d.Taxonomies.Set.Selected {
		tax := &d.Taxonomies.Set.Selected[i]
		if tax.Status != StatusActive {
			continue
		}
		pos := 0
		for j := range tax.Evidence.Items {
			if tax.Evidence.Items[j].Status != StatusActive {
				continue
			}
			pos++
			tax.Evidence.Items[j].Number = fmt.Sprintf("%s.%d", taxonomyPrefix(tax.Order), pos)
		}
	}
}
