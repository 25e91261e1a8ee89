package incident

import (
	"fmt"
	"strconv"
	"strings"
)

// UniqueIndex is the human-readable composite identifier that cross-links
// the incidentes row, the seed files and the evidence folders:
// <correlativo>_<rut sin dígito verificador>_<modulo>_<submodulo>_<descripcion>.
type UniqueIndex struct {
	Correlativo string `json:"correlativo"`
	RUT         string `json:"rut"`
	Modulo      string `json:"modulo"`
	Submodulo   string `json:"submodulo"`
	Descripcion string `json:"descripcion"`
}

func (u UniqueIndex) String() string {
	return strings.Join([]string{u.Correlativo, u.RUT, u.Modulo, u.Submodulo, u.Descripcion}, "_")
}

// BuildUniqueIndex formats the components. The RUT comes in without its
// check digit; non-digit separators are stripped defensively upstream.
func BuildUniqueIndex(correlativo int64, rut string, modulo, submodulo int, descripcion string) UniqueIndex {
	desc := strings.ToUpper(strings.TrimSpace(descripcion))
	desc = strings.ReplaceAll(desc, " ", "_")
	if desc == "" {
		desc = "INCIDENTE_CIBERSEGURIDAD"
	}
	return UniqueIndex{
		Correlativo: strconv.FormatInt(correlativo, 10),
		RUT:         rut,
		Modulo:      strconv.Itoa(modulo),
		Submodulo:   strconv.Itoa(submodulo),
		Descripcion: desc,
	}
}

// ParseUniqueIndex splits and validates an index string. The first four
// components must parse as integers; the description is the rest,
// underscores included.
func ParseUniqueIndex(s string) (UniqueIndex, error) {
	parts := strings.Split(s, "_")
	if len(parts) < 5 {
		return UniqueIndex{}, fmt.Errorf("índice único malformado: %q", s)
	}
	u := UniqueIndex{
		Correlativo: parts[0],
		RUT:         parts[1],
		Modulo:      parts[2],
		Submodulo:   parts[3],
		Descripcion: strings.Join(parts[4:], "_"),
	}
	for _, numeric := range []struct{ name, val string }{
		{"correlativo", u.Correlativo},
		{"rut", u.RUT},
		{"modulo", u.Modulo},
		{"submodulo", u.Submodulo},
	} {
		if _, err := strconv.Atoi(numeric.val); err != nil {
			return UniqueIndex{}, fmt.Errorf("índice único malformado: componente %s no numérico: %q", numeric.name, numeric.val)
		}
	}
	if u.Descripcion == "" {
		return UniqueIndex{}, fmt.Errorf("índice único malformado: descripción vacía")
	}
	return u, nil
}

// StripRUTCheckDigit normalizes a RUT like "12.345.678-9" to "12345678".
func StripRUTCheckDigit(rut string) string {
	clean := strings.NewReplacer("-", "", ".", "").Replace(strings.TrimSpace(rut))
	if len(clean) > 1 {
		return clean[:len(clean)-1]
	}
	return "00000000"
}
