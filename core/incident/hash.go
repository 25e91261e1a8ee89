package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// IntegrityHash is SHA-256 over the canonical (sorted-key) JSON of the
// document with metadata removed. It detects accidental corruption of a
// persisted document; it is not a tamper-proofing mechanism.
func IntegrityHash(d *Document) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	delete(m, "metadata")
	// Round-trip through interface{} so encoding/json emits map keys sorted.
	var plain map[string]any
	canon, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(canon, &plain); err != nil {
		return "", err
	}
	canon, err = json.Marshal(plain)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Clone deep-copies the document through its JSON form.
func Clone(d *Document) (*Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	out := &Document{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportForSave returns a copy ready for persistence: fresh modification
// timestamp and recomputed integrity hash. Section content is untouched.
func ExportForSave(d *Document, now time.Time) (*Document, error) {
	out, err := Clone(d)
	if err != nil {
		return nil, err
	}
	out.Metadata.UpdatedAt = Timestamp(now)
	h, err := IntegrityHash(out)
	if err != nil {
		return nil, err
	}
	out.Metadata.IntegrityHash = h
	return out, nil
}

// ErrLegacyFormat marks blobs whose version_formato predates FormatVersion.
var ErrLegacyFormat = errors.New("formato de incidente antiguo")

// ImportFromDB decodes a formato_semilla_json blob. Blobs carrying the
// current format version are decoded as-is; anything else goes through the
// legacy field mapping, which recovers only a handful of fields.
func ImportFromDB(raw []byte) (*Document, error) {
	var probe struct {
		Metadata struct {
			FormatVersion string `json:"version_formato"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if probe.Metadata.FormatVersion == FormatVersion {
		doc := &Document{}
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	return importLegacy(raw)
}

// importLegacy maps what it can from a pre-2.0 blob; free-form content the
// old layout did not carry is lost. Degraded but accepted.
func importLegacy(raw []byte) (*Document, error) {
	var old struct {
		Informante map[string]any `json:"informante"`
		Incidente  map[string]any `json:"incidente"`
	}
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, err
	}
	doc := New(time.Now(), "")
	if old.Informante != nil {
		applyReporterValues(doc, old.Informante)
	}
	if old.Incidente != nil {
		applyClassificationValues(doc, old.Incidente)
	}
	return doc, nil
}
