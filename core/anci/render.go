package anci

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"agente-digital/core/incident"
	"agente-digital/core/store"
)

var kindTitles = map[string]string{
	incident.ReportEarlyAlert:  "Alerta Temprana",
	incident.ReportPreliminary: "Informe Preliminar",
	incident.ReportFull:        "Informe Completo",
	incident.ReportFinal:       "Informe Final",
}

type reportLine struct {
	Label string
	Value string
}

func reportLines(kind string, row *store.Incident, doc *incident.Document) []reportLine {
	lines := []reportLine{
		{"Indice unico", row.UniqueIndex},
		{"Entidad", doc.Reporter.Company.LegalName},
		{"RUT", doc.Reporter.Company.RUT},
		{"Tipo de entidad", doc.Reporter.Company.EntityType},
		{"Titulo", doc.Classification.Title},
		{"Fecha del incidente", doc.Classification.IncidentDate},
		{"Criticidad", doc.Classification.Criticality},
		{"Descripcion", doc.Classification.Description},
		{"Sistemas afectados", strings.Join(doc.Classification.AffectedSystems, ", ")},
		{"Alcance geografico", doc.Classification.GeographicScope},
	}
	if kind == incident.ReportEarlyAlert {
		return lines
	}
	lines = append(lines,
		reportLine{"Afectacion del servicio", doc.Impact.ServiceImpact},
		reportLine{"Usuarios afectados", fmt.Sprintf("%d", doc.Impact.AffectedUsers)},
		reportLine{"Acciones inmediatas", doc.Response.ImmediateActions},
		reportLine{"Medidas de contencion", doc.Response.Containment},
	)
	if kind == incident.ReportFull || kind == incident.ReportFinal {
		lines = append(lines,
			reportLine{"Analisis preliminar", doc.RootCause.PreliminaryAnalysis},
			reportLine{"Causa raiz", doc.RootCause.RootCauseDescription},
			reportLine{"Vector de ataque", doc.Technical.AttackVector},
			reportLine{"Vulnerabilidad explotada", doc.Technical.ExploitedVuln},
			reportLine{"IPs sospechosas", strings.Join(doc.Technical.IoCs.SuspiciousIPs, ", ")},
		)
	}
	if kind == incident.ReportFinal {
		lines = append(lines,
			reportLine{"Acciones correctivas", doc.Lessons.CorrectiveActions},
			reportLine{"Acciones preventivas", doc.Lessons.PreventiveActions},
			reportLine{"Responsable de seguimiento", doc.FollowUp.Responsible},
		)
	}
	return lines
}

// renderPDF writes the flat label/value report with gofpdf. Latin-1 output,
// which covers the Spanish field content.
func renderPDF(path, kind string, row *store.Incident, doc *incident.Document) error {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle("Reporte ANCI "+row.UniqueIndex, false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr("Reporte ANCI: "+kindTitles[kind]), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, line := range reportLines(kind, row, doc) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(60, 7, tr(line.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 7, tr(line.Value), "", "L", false)
	}
	return pdf.OutputFileAndClose(path)
}

// renderDOCX assembles a minimal well-formed OOXML package: the mandatory
// content-types and relationship parts plus one document body.
func renderDOCX(path, kind string, row *store.Incident, doc *incident.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := zip.NewWriter(f)

	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"_rels/.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml": documentXML(kind, row, doc),
	}
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/_rels/document.xml.rels", "word/document.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := w.Write([]byte(parts[name])); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func documentXML(kind string, row *store.Incident, doc *incident.Document) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	writePara(&b, "Reporte ANCI: "+kindTitles[kind], true)
	for _, line := range reportLines(kind, row, doc) {
		writePara(&b, line.Label+": "+line.Value, false)
	}
	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

func writePara(b *strings.Builder, text string, bold bool) {
	var esc strings.Builder
	xml.EscapeText(&esc, []byte(text))
	b.WriteString(`<w:p><w:r>`)
	if bold {
		b.WriteString(`<w:rPr><w:b/></w:rPr>`)
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	b.WriteString(esc.String())
	b.WriteString(`</w:t></w:r></w:p>`)
}
