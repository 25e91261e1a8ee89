package incidents

import (
	"encoding/json"

	"agente-digital/core/incident"
)

func docJSON(doc *incident.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
