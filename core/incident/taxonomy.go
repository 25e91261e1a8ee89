package incident

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// TaxonomySection (4) holds the selected-taxonomy arena. Slots are indexed
// by a document-wide monotonic counter: numero_orden values are assigned
// once and never reused, so evidence paths already written under
// 4.4.<orden> stay valid after a deletion.
type TaxonomySection struct {
	Set TaxonomySet `json:"taxonomias"`
}

type TaxonomySet struct {
	Selected      []SelectedTaxonomy `json:"seleccionadas"`
	GlobalCounter int                `json:"contador_global"`
	LastChange    string             `json:"ultimo_cambio"`
	History       []ChangeRecord     `json:"historial_cambios"`
}

type SelectedTaxonomy struct {
	UID           string       `json:"id_unico"`
	TaxonomyID    int64        `json:"taxonomia_id"`
	Name          string       `json:"nombre"`
	Category      string       `json:"categoria"`
	Subcategory   string       `json:"subcategoria"`
	Justification string       `json:"porque_seleccionada"`
	Notes         string       `json:"observaciones_adicionales"`
	Order         int          `json:"numero_orden"`
	Status        string       `json:"estado"`
	AssignedAt    string       `json:"fecha_asignacion"`
	RemovedAt     string       `json:"fecha_eliminacion,omitempty"`
	Evidence      EvidenceList `json:"evidencias"`
}

type ChangeRecord struct {
	Timestamp  string `json:"timestamp"`
	Action     string `json:"accion"`
	TaxonomyID int64  `json:"taxonomia_id"`
	Order      int    `json:"numero_orden"`
	Details    string `json:"detalles,omitempty"`
}

// TaxonomyInput carries caller-supplied fields for a new selection.
type TaxonomyInput struct {
	TaxonomyID    int64  `json:"taxonomia_id"`
	Name          string `json:"nombre"`
	Category      string `json:"categoria"`
	Subcategory   string `json:"subcategoria"`
	Justification string `json:"porque_seleccionada"`
	Notes         string `json:"observaciones_adicionales"`
}

// ActiveTaxonomies returns pointers to the active slots in order.
func (d *Document) ActiveTaxonomies() []*SelectedTaxonomy {
	var out []*SelectedTaxonomy
	for i := range d.Taxonomies.Set.Selected {
		if d.Taxonomies.Set.Selected[i].Status == StatusActive {
			out = append(out, &d.Taxonomies.Set.Selected[i])
		}
	}
	return out
}

// FindTaxonomy locates an active slot by its UID.
func (d *Document) FindTaxonomy(uid string) *SelectedTaxonomy {
	for i := range d.Taxonomies.Set.Selected {
		t := &d.Taxonomies.Set.Selected[i]
		if t.UID == uid && t.Status == StatusActive {
			return t
		}
	}
	return nil
}

// AddTaxonomy appends a new selection. If an active slot already references
// the same catalog id the call is a no-op and the existing slot is returned.
// Otherwise the document-wide counter advances and its value becomes the new
// slot's numero_orden.
func (d *Document) AddTaxonomy(in TaxonomyInput, now time.Time) *SelectedTaxonomy {
	set := &d.Taxonomies.Set
	for i := range set.Selected {
		if set.Selected[i].TaxonomyID == in.TaxonomyID && set.Selected[i].Status == StatusActive {
			return &set.Selected[i]
		}
	}
	set.GlobalCounter++
	entry := SelectedTaxonomy{
		UID:           uuid.Must(uuid.NewV4()).String(),
		TaxonomyID:    in.TaxonomyID,
		Name:          in.Name,
		Category:      in.Category,
		Subcategory:   in.Subcategory,
		Justification: in.Justification,
		Notes:         in.Notes,
		Order:         set.GlobalCounter,
		Status:        StatusActive,
		AssignedAt:    Timestamp(now),
		Evidence:      newEvidenceList(),
	}
	set.Selected = append(set.Selected, entry)
	set.recordChange(now, "agregar_taxonomia", entry.TaxonomyID, entry.Order, "Agregada taxonomía: "+entry.Name)
	d.Touch(now, "")
	return &set.Selected[len(set.Selected)-1]
}

// RemoveTaxonomy soft-deletes the slot with the given UID: the slot and its
// evidence items are marked removed but stay in place, keeping file-system
// paths and DB rows resolvable. The orden is never reassigned.
func (d *Document) RemoveTaxonomy(uid string, now time.Time) bool {
	set := &d.Taxonomies.Set
	for i := range set.Selected {
		t := &set.Selected[i]
		if t.UID != uid || t.Status != StatusActive {
			continue
		}
		t.Status = StatusRemoved
		t.RemovedAt = Timestamp(now)
		for j := range t.Evidence.Items {
			t.Evidence.Items[j].Status = StatusRemoved
		}
		set.recordChange(now, "eliminar_taxonomia", t.TaxonomyID, t.Order, "Eliminada taxonomía: "+t.Name)
		d.Touch(now, "")
		return true
	}
	return false
}

// AddTaxonomyEvidence attaches an evidence item to the active slot with the
// given UID, numbering it 4.4.<orden>.<counter>.
func (d *Document) AddTaxonomyEvidence(uid string, item EvidenceItem, now time.Time) (string, error) {
	tax := d.FindTaxonomy(uid)
	if tax == nil {
		return "", fmt.Errorf("taxonomia %s no encontrada", uid)
	}
	tax.Evidence.Counter++
	item.Number = fmt.Sprintf("%s.%d", taxonomyPrefix(tax.Order), tax.Evidence.Counter)
	if item.Status == "" {
		item.Status = StatusActive
	}
	if item.UploadedAt == "" {
		item.UploadedAt = Timestamp(now)
	}
	tax.Evidence.Items = append(tax.Evidence.Items, item)
	d.Touch(now, item.UploadedBy)
	return item.Number, nil
}

func (s *TaxonomySet) recordChange(now time.Time, action string, taxonomyID int64, order int, details string) {
	s.History = append(s.History, ChangeRecord{
		Timestamp:  Timestamp(now),
		Action:     action,
		TaxonomyID: taxonomyID,
		Order:      order,
		Details:    details,
	})
	s.LastChange = Timestamp(now)
}
