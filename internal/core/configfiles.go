package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// LoadChannelMap reads channels.json. A missing file is an empty mapping,
// which routes every report to the unclassified channel.
func LoadChannelMap(path string) (models.ChannelMap, error) {
	m := models.ChannelMap{}
	if err := readOptionalJSON(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadOwners reads owners.json. A missing file means no owners.
func LoadOwners(path string) (models.OwnersConfig, error) {
	o := models.OwnersConfig{}
	if err := readOptionalJSON(path, &o); err != nil {
		return nil, err
	}
	return o, nil
}

// LoadResolved reads resolved.json. A missing file lists nothing.
func LoadResolved(path string) (models.ResolvedConfig, error) {
	var r models.ResolvedConfig
	if err := readOptionalJSON(path, &r); err != nil {
		return models.ResolvedConfig{}, err
	}
	return r, nil
}

func readOptionalJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// DefaultChannelMap is the channels.json written by `sectriage init`.
func DefaultChannelMap() models.ChannelMap {
	return models.ChannelMap{
		"nphies":   {"nphies", "fhir", "eligibility", "prior auth", "preauth"},
		"payments": {"payment", "checkout", "card", "gateway", "refund"},
		"banking":  {"bank", "iban", "transfer", "swift", "sarie"},
		"payers":   {"payer", "insurer", "insurance"},
		"claims":   {"claim", "837", "clearinghouse"},
		"denials":  {"denial", "denied", "rejection"},
		"billing":  {"invoice", "billing", "statement"},
		"auth":     {"login", "password", "session", "mfa", "sso", "oauth"},
		"infra":    {"dns", "s3", "bucket", "subdomain", "tls", "certificate"},
	}
}

// DefaultOwners is the owners.json written by `sectriage init`.
func DefaultOwners() models.OwnersConfig {
	return models.OwnersConfig{
		models.Wildcard: {models.Wildcard: {Team: "security-team"}},
	}
}
