package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"leadboard/models"
)

// StaticAccounts is an account list read from a YAML file instead of the upstream.
//
//	accounts:
//	  - id: acct_1
//	    name: Sales line
type StaticAccounts struct {
	Accounts []models.Account `yaml:"accounts"`
}

// LoadSources parses the YAML account list at path.
func LoadSources(path string) (*StaticAccounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sources file %q: %w", path, err)
	}
	return ParseSources(data)
}

// ParseSources decodes a YAML account list, dropping blank and repeated ids.
func ParseSources(data []byte) (*StaticAccounts, error) {
	var raw StaticAccounts
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse sources: %w", err)
	}

	seen := make(map[string]struct{}, len(raw.Accounts))
	out := &StaticAccounts{Accounts: make([]models.Account, 0, len(raw.Accounts))}
	for _, a := range raw.Accounts {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out.Accounts = append(out.Accounts, a)
	}
	if len(out.Accounts) == 0 {
		return nil, fmt.Errorf("config: sources file lists no accounts")
	}
	return out, nil
}

// ListAccounts returns the configured accounts in file order.
func (s *StaticAccounts) ListAccounts(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, len(s.Accounts))
	copy(out, s.Accounts)
	return out, nil
}
