package ticket

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Mindburn-Labs/certscan/pkg/expiry"
)

// Template is the base creation payload. Summary and description seeds are
// appended to per batch, never replaced, so the operator-provided template
// keeps its project, issue type and boilerplate text.
type Template struct {
	Fields map[string]any `json:"fields"`
}

// DefaultTemplate returns the built-in payload skeleton.
func DefaultTemplate() Template {
	return Template{
		Fields: map[string]any{
			"project":     map[string]any{"key": "OPS"},
			"issuetype":   map[string]any{"name": "Task"},
			"summary":     "Expiring certificates: ",
			"description": "The following certificates expire soon.\n\n",
		},
	}
}

// LoadTemplate reads a payload template from a JSON file.
func LoadTemplate(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("ticket: read template %s: %w", path, err)
	}
	var t Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return Template{}, fmt.Errorf("ticket: parse template %s: %w", path, err)
	}
	if t.Fields == nil {
		t.Fields = make(map[string]any)
	}
	return t, nil
}

// Render produces the request body for one batch: the template with policy
// and month appended to the summary and one line per certificate appended to
// the description, grouped by environment.
func (t Template) Render(batch Batch) ([]byte, error) {
	fields := make(map[string]any, len(t.Fields))
	for k, v := range t.Fields {
		fields[k] = v
	}

	summary, _ := fields["summary"].(string)
	fields["summary"] = summary + batch.Policy + " - " + expiry.MonthName(batch.Month)

	description, _ := fields["description"].(string)
	description += batch.Policy + ":\n\n"

	environments := make([]string, 0, len(batch.ByEnv))
	for environment := range batch.ByEnv {
		environments = append(environments, environment)
	}
	sort.Strings(environments)

	for _, environment := range environments {
		description += environment + "\t:\n"
		for _, record := range batch.ByEnv[environment] {
			description += fmt.Sprintf("\t\t * EndDate: %s\tSerialID: %s\tIssuer: %s\n",
				record.EndDate(), record.Serial, record.Issuer)
		}
	}
	fields["description"] = description

	body, err := json.MarshalIndent(map[string]any{"fields": fields}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("ticket: marshal payload: %w", err)
	}
	return body, nil
}
