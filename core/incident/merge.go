package incident

// Per-section allow-list merging. Callers hand over loosely-typed JSON
// objects keyed by section number; only the keys listed here land in the
// document, everything else is dropped silently.

// ApplyValues merges caller-supplied values section by section.
func (d *Document) ApplyValues(values map[string]map[string]any) {
	for section, fields := range values {
		if fields == nil {
			continue
		}
		switch section {
		case "1":
			applyReporterValues(d, fields)
		case "2":
			applyClassificationValues(d, fields)
		case "3":
			applyImpactValues(d, fields)
		case "5":
			applyResponseValues(d, fields)
		case "6":
			applyRootCauseValues(d, fields)
		case "7":
			applyLessonsValues(d, fields)
		case "8":
			applyFollowUpValues(d, fields)
		case "9":
			applyTechnicalValues(d, fields)
		}
	}
}

func applyReporterValues(d *Document, v map[string]any) {
	s := &d.Reporter
	setString(v, "tipo_persona", &s.PersonType)
	setString(v, "nombre_informante", &s.Name)
	setString(v, "rut_informante", &s.RUT)
	setString(v, "email_informante", &s.Email)
	setString(v, "telefono_informante", &s.Phone)
	setString(v, "region", &s.Region)
	if sub, ok := v["empresa"].(map[string]any); ok {
		setString(sub, "razon_social", &s.Company.LegalName)
		setString(sub, "rut", &s.Company.RUT)
		setString(sub, "tipo_entidad", &s.Company.EntityType)
		setString(sub, "sector_esencial", &s.Company.EssentialSector)
	}
	if sub, ok := v["contacto_emergencia"].(map[string]any); ok {
		setString(sub, "nombre_reportante", &s.Emergency.Name)
		setString(sub, "cargo_reportante", &s.Emergency.Position)
		setString(sub, "telefono_24_7", &s.Emergency.Phone247)
		setString(sub, "email_oficial_seguridad", &s.Emergency.SecurityEmail)
	}
}

func applyClassificationValues(d *Document, v map[string]any) {
	s := &d.Classification
	setString(v, "titulo_incidente", &s.Title)
	setString(v, "descripcion", &s.Description)
	setString(v, "fecha_incidente", &s.IncidentDate)
	setString(v, "hora_incidente", &s.IncidentTime)
	setString(v, "criticidad", &s.Criticality)
	setString(v, "estado_operacional", &s.OperationalState)
	setString(v, "detectado_por", &s.DetectedBy)
	setString(v, "alcance_geografico", &s.GeographicScope)
	setString(v, "descripcion_estado_actual", &s.CurrentStateNotes)
	setBool(v, "incidente_en_curso", &s.Ongoing)
	setBool(v, "contencion_aplicada", &s.ContainmentApplied)
	setStringSlice(v, "sistemas_afectados", &s.AffectedSystems)
}

func applyImpactValues(d *Document, v map[string]any) {
	s := &d.Impact
	setString(v, "afectacion_servicio", &s.ServiceImpact)
	setInt(v, "cantidad_usuarios_afectados", &s.AffectedUsers)
	setString(v, "tipo_usuarios_afectados", &s.AffectedUserTypes)
	setString(v, "impacto_economico", &s.EconomicImpact)
	setString(v, "impacto_reputacional", &s.ReputationImpact)
	setString(v, "otros_impactos", &s.OtherImpacts)
}

func applyResponseValues(d *Document, v map[string]any) {
	s := &d.Response
	setString(v, "acciones_inmediatas", &s.ImmediateActions)
	setString(v, "medidas_contencion", &s.Containment)
	setBool(v, "se_activo_protocolo", &s.ProtocolActivated)
	setString(v, "protocolo_activado", &s.ProtocolName)
	setStringSlice(v, "sistemas_aislados", &s.IsolatedSystems)
	setBool(v, "solicitar_csirt", &s.RequestCSIRT)
	setString(v, "tipo_apoyo_csirt", &s.CSIRTSupportType)
}

func applyRootCauseValues(d *Document, v map[string]any) {
	s := &d.RootCause
	setString(v, "analisis_preliminar", &s.PreliminaryAnalysis)
	setBool(v, "causa_raiz_identificada", &s.RootCauseIdentified)
	setString(v, "descripcion_causa_raiz", &s.RootCauseDescription)
	setString(v, "factores_contribuyentes", &s.ContributingFactors)
}

func applyLessonsValues(d *Document, v map[string]any) {
	s := &d.Lessons
	setString(v, "acciones_correctivas", &s.CorrectiveActions)
	setString(v, "acciones_preventivas", &s.PreventiveActions)
	setString(v, "mejoras_procesos", &s.ProcessImprovement)
	setString(v, "capacitacion_requerida", &s.TrainingRequired)
}

func applyFollowUpValues(d *Document, v map[string]any) {
	s := &d.FollowUp
	setString(v, "responsable_seguimiento", &s.Responsible)
	setString(v, "fecha_compromiso_acciones", &s.CommitmentDate)
	setString(v, "metricas_seguimiento", &s.Metrics)
	setString(v, "periodicidad_revision", &s.ReviewPeriodicity)
	setString(v, "observaciones_adicionales", &s.Notes)
}

func applyTechnicalValues(d *Document, v map[string]any) {
	s := &d.Technical
	setString(v, "vector_ataque", &s.AttackVector)
	setString(v, "vulnerabilidad_explotada", &s.ExploitedVuln)
	setFloat(v, "volumen_datos_gb", &s.DataVolumeGB)
	setString(v, "efectos_colaterales", &s.CollateralEffects)
	setStringSlice(v, "cronologia_detallada", &s.DetailedChronology)
	if sub, ok := v["iocs"].(map[string]any); ok {
		setStringSlice(sub, "ips_sospechosas", &s.IoCs.SuspiciousIPs)
		setStringSlice(sub, "hashes_malware", &s.IoCs.MalwareHashes)
		setStringSlice(sub, "dominios_maliciosos", &s.IoCs.MaliciousDomains)
		setStringSlice(sub, "urls_maliciosas", &s.IoCs.MaliciousURLs)
		setStringSlice(sub, "cuentas_comprometidas", &s.IoCs.CompromisedAccounts)
	}
	if sub, ok := v["coordinaciones"].(map[string]any); ok {
		setBool(sub, "notificacion_regulador", &s.Coordinations.RegulatorNotified)
		setString(sub, "regulador_notificado", &s.Coordinations.RegulatorName)
		setBool(sub, "denuncia_policial", &s.Coordinations.PoliceReport)
		setString(sub, "numero_parte_policial", &s.Coordinations.PoliceReportNumber)
		setBool(sub, "proveedores_contactados", &s.Coordinations.ProvidersContacted)
		setBool(sub, "comunicacion_publica", &s.Coordinations.PublicCommunication)
	}
	if sub, ok := v["plan_accion_oiv"].(map[string]any); ok {
		setString(sub, "programa_restauracion", &s.OIVActionPlan.RestorationProgram)
		setString(sub, "responsables_administrativos", &s.OIVActionPlan.AdminResponsibles)
		setFloat(sub, "tiempo_restablecimiento_horas", &s.OIVActionPlan.RestoreHours)
		setString(sub, "recursos_necesarios", &s.OIVActionPlan.RequiredResources)
		setString(sub, "acciones_corto_plazo", &s.OIVActionPlan.ShortTermActions)
		setString(sub, "acciones_mediano_plazo", &s.OIVActionPlan.MidTermActions)
		setString(sub, "acciones_largo_plazo", &s.OIVActionPlan.LongTermActions)
	}
	if sub, ok := v["impacto_economico"].(map[string]any); ok {
		setFloat(sub, "costos_recuperacion", &s.EconomicImpact.RecoveryCosts)
		setFloat(sub, "perdidas_operativas", &s.EconomicImpact.OperationalLosses)
		setFloat(sub, "costos_terceros", &s.EconomicImpact.ThirdPartyCosts)
	}
	if sub, ok := v["tracking_reportes"].(map[string]any); ok {
		setBool(sub, "alerta_temprana_enviada", &s.ReportTracking.EarlyAlertSent)
		setString(sub, "fecha_alerta_temprana", &s.ReportTracking.EarlyAlertDate)
		setBool(sub, "informe_preliminar_enviado", &s.ReportTracking.PreliminarySent)
		setString(sub, "fecha_informe_preliminar", &s.ReportTracking.PreliminaryDate)
		setBool(sub, "informe_completo_enviado", &s.ReportTracking.FullReportSent)
		setString(sub, "fecha_informe_completo", &s.ReportTracking.FullReportDate)
		setBool(sub, "plan_accion_enviado", &s.ReportTracking.ActionPlanSent)
		setString(sub, "fecha_plan_accion", &s.ReportTracking.ActionPlanDate)
		setBool(sub, "informe_final_enviado", &s.ReportTracking.FinalReportSent)
		setString(sub, "fecha_informe_final", &s.ReportTracking.FinalReportDate)
	}
}

func setString(v map[string]any, key string, dst *string) {
	if raw, ok := v[key]; ok {
		if s, ok := raw.(string); ok {
			*dst = s
		}
	}
}

func setBool(v map[string]any, key string, dst *bool) {
	if raw, ok := v[key]; ok {
		if b, ok := raw.(bool); ok {
			*dst = b
		}
	}
}

func setInt(v map[string]any, key string, dst *int) {
	if raw, ok := v[key]; ok {
		switch n := raw.(type) {
		case float64:
			*dst = int(n)
		case int:
			*dst = n
		}
	}
}

func setFloat(v map[string]any, key string, dst *float64) {
	if raw, ok := v[key]; ok {
		switch n := raw.(type) {
		case float64:
			*dst = n
		case int:
			*dst = float64(n)
		}
	}
}

func setStringSlice(v map[string]any, key string, dst *[]string) {
	raw, ok := v[key]
	if !ok {
		return
	}
	switch vals := raw.(type) {
	case []string:
		*dst = vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		*dst = out
	}
}
