// Package validator checks object definition files and device entries
// before they are loaded into a running engine.
package validator

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/oid"
	"github.com/geekxflood/proteus/internal/session"
)

// ValidationError describes a single problem found during validation
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Report collects the outcome of validating one file
type Report struct {
	Entries  int                `json:"entries"`
	Problems []*ValidationError `json:"problems,omitempty"`
}

// Valid reports whether no problems were found
func (r *Report) Valid() bool {
	return len(r.Problems) == 0
}

// ValidateDefinitionFile checks an object definition file without
// loading it into a tree. Every entry is checked so a single run
// reports all problems, not just the first.
func ValidateDefinitionFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}

	var definitions []mib.Definition
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("failed to parse definition file: %w", err)
	}

	report := &Report{Entries: len(definitions)}
	seen := make(map[string]int)

	for i, def := range definitions {
		field := fmt.Sprintf("definitions[%d]", i)

		parsed, err := oid.Parse(def.OID)
		if err != nil {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".oid",
				Message: err.Error(),
			})
			continue
		}

		canonical := parsed.String()
		if prev, dup := seen[canonical]; dup {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".oid",
				Message: fmt.Sprintf("duplicate of definitions[%d]", prev),
			})
		}
		seen[canonical] = i

		if strings.TrimSpace(def.Name) == "" {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".name",
				Message: "name cannot be empty",
			})
		}

		valueType, err := mib.ParseValueType(def.Type)
		if err != nil {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".type",
				Message: err.Error(),
			})
			continue
		}

		access, err := mib.ParseAccess(def.Access)
		if err != nil {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".access",
				Message: err.Error(),
			})
			continue
		}

		if access == mib.NotAccessible && def.Value != nil {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".value",
				Message: "not-accessible entries cannot carry a value",
			})
		}

		if def.Value != nil {
			if _, err := mib.CoerceValue(valueType, def.Value); err != nil {
				report.Problems = append(report.Problems, &ValidationError{
					Field:   field + ".value",
					Message: err.Error(),
				})
			}
		}
	}

	return report, nil
}

// ValidateDevices checks a slice of device entries for registry
// admission problems without touching a live registry.
func ValidateDevices(devices []session.Device) *Report {
	report := &Report{Entries: len(devices)}
	seen := make(map[string]int)

	for i, device := range devices {
		field := fmt.Sprintf("devices[%d]", i)

		if strings.TrimSpace(device.ID) == "" {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".id",
				Message: "device ID cannot be empty",
			})
		} else if prev, dup := seen[device.ID]; dup {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate of devices[%d]", prev),
			})
		} else {
			seen[device.ID] = i
		}

		if strings.TrimSpace(device.Address) == "" {
			report.Problems = append(report.Problems, &ValidationError{
				Field:   field + ".address",
				Message: "device address cannot be empty",
			})
		}

		if device.Version != "" {
			if _, err := session.ParseVersion(string(device.Version)); err != nil {
				report.Problems = append(report.Problems, &ValidationError{
					Field:   field + ".version",
					Message: err.Error(),
				})
			}
		}
	}

	return report
}
