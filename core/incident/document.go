package incident

import (
	"time"
)

// FormatVersion tags the document layout. Imports reject other versions into
// the legacy conversion path.
const FormatVersion = "2.0"

// Lifecycle states carried in metadata.estado_temporal.
const (
	StateDraft        = "draft"
	StateOriginalSeed = "original_seed"
	StateBaseSeed     = "base_seed"
	StateEditing      = "editing"
)

// Evidence and taxonomy entry statuses.
const (
	StatusActive  = "activo"
	StatusRemoved = "eliminado"
)

// Document is the canonical incident report: metadata plus nine numbered
// sections. The JSON shape (keys "1".."9") is shared with the seed files on
// disk and the formato_semilla_json column, so tags are load-bearing.
type Document struct {
	Metadata       Metadata              `json:"metadata"`
	Reporter       ReporterSection       `json:"1"`
	Classification ClassificationSection `json:"2"`
	Impact         ImpactSection         `json:"3"`
	Taxonomies     TaxonomySection       `json:"4"`
	Response       ResponseSection       `json:"5"`
	RootCause      RootCauseSection      `json:"6"`
	Lessons        LessonsSection        `json:"7"`
	FollowUp       FollowUpSection       `json:"8"`
	Technical      TechnicalSection      `json:"9"`
	Files          FileSummary           `json:"resumen_archivos"`
}

type Metadata struct {
	FormatVersion string `json:"version_formato"`
	CreatedAt     string `json:"timestamp_creacion"`
	UpdatedAt     string `json:"timestamp_actualizacion"`
	State         string `json:"estado_temporal"`
	IntegrityHash string `json:"hash_integridad"`
	Version       int    `json:"version"`
	UniqueIndex   string `json:"indice_unico"`
	IncidentID    int64  `json:"incidente_id"`
	CompanyID     int64  `json:"empresa_id"`
	TenantID      int64  `json:"inquilino_id"`
	CreatedBy     string `json:"usuario_creacion"`
	UpdatedBy     string `json:"usuario_modificacion"`
}

// ReporterSection (1): who reports, on behalf of which regulated entity.
type ReporterSection struct {
	PersonType     string           `json:"tipo_persona"`
	Name           string           `json:"nombre_informante"`
	RUT            string           `json:"rut_informante"`
	Email          string           `json:"email_informante"`
	Phone          string           `json:"telefono_informante"`
	Region         string           `json:"region"`
	Company        CompanyInfo      `json:"empresa"`
	Emergency      EmergencyContact `json:"contacto_emergencia"`
}

type CompanyInfo struct {
	LegalName       string `json:"razon_social"`
	RUT             string `json:"rut"`
	EntityType      string `json:"tipo_entidad"` // OIV or PSE
	EssentialSector string `json:"sector_esencial"`
}

type EmergencyContact struct {
	Name          string `json:"nombre_reportante"`
	Position      string `json:"cargo_reportante"`
	Phone247      string `json:"telefono_24_7"`
	SecurityEmail string `json:"email_oficial_seguridad"`
}

// ClassificationSection (2): identification and classification. Evidence
// items here are numbered under the 2.5 prefix.
type ClassificationSection struct {
	Title              string       `json:"titulo_incidente"`
	Description        string       `json:"descripcion"`
	IncidentDate       string       `json:"fecha_incidente"`
	IncidentTime       string       `json:"hora_incidente"`
	Criticality        string       `json:"criticidad"`
	OperationalState   string       `json:"estado_operacional"`
	DetectedBy         string       `json:"detectado_por"`
	AffectedSystems    []string     `json:"sistemas_afectados"`
	GeographicScope    string       `json:"alcance_geografico"`
	Ongoing            bool         `json:"incidente_en_curso"`
	ContainmentApplied bool         `json:"contencion_aplicada"`
	CurrentStateNotes  string       `json:"descripcion_estado_actual"`
	Evidence           EvidenceList `json:"evidencias"`
}

// ImpactSection (3): impact assessment, 3.4 evidence prefix.
type ImpactSection struct {
	ServiceImpact     string       `json:"afectacion_servicio"`
	AffectedUsers     int          `json:"cantidad_usuarios_afectados"`
	AffectedUserTypes string       `json:"tipo_usuarios_afectados"`
	EconomicImpact    string       `json:"impacto_economico"`
	ReputationImpact  string       `json:"impacto_reputacional"`
	OtherImpacts      string       `json:"otros_impactos"`
	Evidence          EvidenceList `json:"evidencias"`
}

// ResponseSection (5): response and containment, 5.2 evidence prefix.
type ResponseSection struct {
	ImmediateActions   string       `json:"acciones_inmediatas"`
	Containment        string       `json:"medidas_contencion"`
	ProtocolActivated  bool         `json:"se_activo_protocolo"`
	ProtocolName       string       `json:"protocolo_activado"`
	IsolatedSystems    []string     `json:"sistemas_aislados"`
	RequestCSIRT       bool         `json:"solicitar_csirt"`
	CSIRTSupportType   string       `json:"tipo_apoyo_csirt"`
	Evidence           EvidenceList `json:"evidencias"`
}

// RootCauseSection (6): preliminary analysis and root cause, 6.4 prefix.
type RootCauseSection struct {
	PreliminaryAnalysis  string       `json:"analisis_preliminar"`
	RootCauseIdentified  bool         `json:"causa_raiz_identificada"`
	RootCauseDescription string       `json:"descripcion_causa_raiz"`
	ContributingFactors  string       `json:"factores_contribuyentes"`
	Evidence             EvidenceList `json:"evidencias"`
}

type LessonsSection struct {
	CorrectiveActions  string `json:"acciones_correctivas"`
	PreventiveActions  string `json:"acciones_preventivas"`
	ProcessImprovement string `json:"mejoras_procesos"`
	TrainingRequired   string `json:"capacitacion_requerida"`
}

type FollowUpSection struct {
	Responsible       string `json:"responsable_seguimiento"`
	CommitmentDate    string `json:"fecha_compromiso_acciones"`
	Metrics           string `json:"metricas_seguimiento"`
	ReviewPeriodicity string `json:"periodicidad_revision"`
	Notes             string `json:"observaciones_adicionales"`
}

// TechnicalSection (9): ANCI technical fields.
type TechnicalSection struct {
	AttackVector       string         `json:"vector_ataque"`
	ExploitedVuln      string         `json:"vulnerabilidad_explotada"`
	DataVolumeGB       float64        `json:"volumen_datos_gb"`
	CollateralEffects  string         `json:"efectos_colaterales"`
	DetailedChronology []string       `json:"cronologia_detallada"`
	IoCs               IndicatorSet   `json:"iocs"`
	Coordinations      Coordinations  `json:"coordinaciones"`
	OIVActionPlan      OIVActionPlan  `json:"plan_accion_oiv"`
	EconomicImpact     EconomicImpact `json:"impacto_economico"`
	ReportTracking     ReportTracking `json:"tracking_reportes"`
}

type IndicatorSet struct {
	SuspiciousIPs       []string `json:"ips_sospechosas"`
	MalwareHashes       []string `json:"hashes_malware"`
	MaliciousDomains    []string `json:"dominios_maliciosos"`
	MaliciousURLs       []string `json:"urls_maliciosas"`
	CompromisedAccounts []string `json:"cuentas_comprometidas"`
}

type Coordinations struct {
	RegulatorNotified   bool   `json:"notificacion_regulador"`
	RegulatorName       string `json:"regulador_notificado"`
	PoliceReport        bool   `json:"denuncia_policial"`
	PoliceReportNumber  string `json:"numero_parte_policial"`
	ProvidersContacted  bool   `json:"proveedores_contactados"`
	PublicCommunication bool   `json:"comunicacion_publica"`
}

type OIVActionPlan struct {
	RestorationProgram string  `json:"programa_restauracion"`
	AdminResponsibles  string  `json:"responsables_administrativos"`
	RestoreHours       float64 `json:"tiempo_restablecimiento_horas"`
	RequiredResources  string  `json:"recursos_necesarios"`
	ShortTermActions   string  `json:"acciones_corto_plazo"`
	MidTermActions     string  `json:"acciones_mediano_plazo"`
	LongTermActions    string  `json:"acciones_largo_plazo"`
}

type EconomicImpact struct {
	RecoveryCosts     float64 `json:"costos_recuperacion"`
	OperationalLosses float64 `json:"perdidas_operativas"`
	ThirdPartyCosts   float64 `json:"costos_terceros"`
}

type ReportTracking struct {
	EarlyAlertSent      bool   `json:"alerta_temprana_enviada"`
	EarlyAlertDate      string `json:"fecha_alerta_temprana"`
	PreliminarySent     bool   `json:"informe_preliminar_enviado"`
	PreliminaryDate     string `json:"fecha_informe_preliminar"`
	FullReportSent      bool   `json:"informe_completo_enviado"`
	FullReportDate      string `json:"fecha_informe_completo"`
	ActionPlanSent      bool   `json:"plan_accion_enviado"`
	ActionPlanDate      string `json:"fecha_plan_accion"`
	FinalReportSent     bool   `json:"informe_final_enviado"`
	FinalReportDate     string `json:"fecha_informe_final"`
}

type FileSummary struct {
	Total      int            `json:"total"`
	BySection  map[string]int `json:"por_seccion"`
	UpdatedAt  string         `json:"ultima_actualizacion"`
}

// Timestamp is the wire format for document timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// New returns an empty document in draft state with all counters at zero.
func New(now time.Time, createdBy string) *Document {
	ts := Timestamp(now)
	return &Document{
		Metadata: Metadata{
			FormatVersion: FormatVersion,
			CreatedAt:     ts,
			UpdatedAt:     ts,
			State:         StateDraft,
			Version:       1,
			CreatedBy:     createdBy,
			UpdatedBy:     createdBy,
		},
		Reporter: ReporterSection{},
		Classification: ClassificationSection{
			AffectedSystems: []string{},
			Ongoing:         true,
			Evidence:        newEvidenceList(),
		},
		Impact: ImpactSection{Evidence: newEvidenceList()},
		Taxonomies: TaxonomySection{
			Set: TaxonomySet{
				Selected: []SelectedTaxonomy{},
				History:  []ChangeRecord{},
			},
		},
		Response: ResponseSection{
			IsolatedSystems: []string{},
			Evidence:        newEvidenceList(),
		},
		RootCause: RootCauseSection{Evidence: newEvidenceList()},
		Technical: TechnicalSection{
			DetailedChronology: []string{},
			IoCs: IndicatorSet{
				SuspiciousIPs:       []string{},
				MalwareHashes:       []string{},
				MaliciousDomains:    []string{},
				MaliciousURLs:       []string{},
				CompromisedAccounts: []string{},
			},
		},
		Files: FileSummary{BySection: map[string]int{}},
	}
}

// Touch updates the modification metadata.
func (d *Document) Touch(now time.Time, updatedBy string) {
	d.Metadata.UpdatedAt = Timestamp(now)
	if updatedBy != "" {
		d.Metadata.UpdatedBy = updatedBy
	}
}

// RefreshFileSummary recounts active evidence per numbered section and per
// taxonomy slot.
func (d *Document) RefreshFileSummary(now time.Time) {
	total := 0
	bySection := map[string]int{}
	for _, sec := range sectionEvidenceKeys {
		list := d.sectionEvidence(sec)
		if list == nil {
			continue
		}
		n := len(list.active())
		if n > 0 {
			bySection[sectionPrefixes[sec]] = n
			total += n
		}
	}
	for i := range d.Taxonomies.Set.Selected {
		tax := &d.Taxonomies.Set.Selected[i]
		if tax.Status != StatusActive {
			continue
		}
		n := len(tax.Evidence.active())
		if n > 0 {
			bySection[taxonomyPrefix(tax.Order)] = n
			total += n
		}
	}
	d.Files = FileSummary{Total: total, BySection: bySection, UpdatedAt: Timestamp(now)}
}
