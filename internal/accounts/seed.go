package accounts

import (
	"fmt"
	"os"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Accounts []struct {
		ID     string `yaml:"id"`
		Email  string `yaml:"email"`
		Status string `yaml:"status"`
	} `yaml:"accounts"`
}

// LoadFile reads a YAML account list:
//
//	accounts:
//	  - id: acc-1
//	    email: alice@example.com
//	    status: active
func LoadFile(path string) ([]models.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	out := make([]models.Account, 0, len(f.Accounts))
	for i, a := range f.Accounts {
		if a.ID == "" || a.Email == "" {
			return nil, fmt.Errorf("accounts[%d]: id and email are required", i)
		}
		status := models.AccountStatus(a.Status)
		switch status {
		case "":
			status = models.AccountStatusActive
		case models.AccountStatusActive, models.AccountStatusSuspended, models.AccountStatusClosed:
		default:
			return nil, fmt.Errorf("accounts[%d]: unknown status %q", i, a.Status)
		}
		out = append(out, models.Account{ID: a.ID, Email: normalizeEmail(a.Email), Status: status})
	}
	return out, nil
}
