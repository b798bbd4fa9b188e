package account

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Account describes one managed Google Ads account.
type Account struct {
	Key             string   `yaml:"-"`
	ID              string   `yaml:"id"`
	LoginCustomerID string   `yaml:"login_customer_id"`
	Name            string   `yaml:"name"`
	Timezone        string   `yaml:"timezone"`
	Aliases         []string `yaml:"aliases"`
	BrandTerms      []string `yaml:"brand_terms"`
	CompetitorTerms []string `yaml:"competitor_terms"`
	SoldBrands      []string `yaml:"sold_brands"`
	Categories      []string `yaml:"categories"`
}

// Slug returns the account key, safe for use in file names.
func (a Account) Slug() string {
	return strings.ToLower(strings.ReplaceAll(a.Key, " ", "-"))
}

// Login returns the login customer ID, falling back to the account ID for
// accounts accessed directly rather than through a manager account.
func (a Account) Login() string {
	if a.LoginCustomerID != "" {
		return a.LoginCustomerID
	}
	return a.ID
}

// Location resolves the account's IANA timezone, defaulting to UTC.
func (a Account) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DateRange holds an inclusive reporting window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartDate formats the range start as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format("2006-01-02") }

// EndDate formats the range end as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format("2006-01-02") }

// Days returns the number of days covered by the range, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Window computes the reporting window for the account: the N days ending
// yesterday in the account's timezone. Reports never include today because
// the current day's metrics are still moving.
func (a Account) Window(days int, now time.Time) DateRange {
	loc := a.Location()
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))
	return DateRange{Start: start, End: end}
}

// Registry is the set of configured accounts, keyed by account key.
type Registry struct {
	accounts map[string]Account
}

// LoadRegistry reads the accounts YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "account: read %s", path)
	}

	var raw map[string]Account
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "account: parse %s", path)
	}

	accounts := make(map[string]Account, len(raw))
	for key, acc := range raw {
		acc.Key = key
		accounts[key] = acc
	}
	return &Registry{accounts: accounts}, nil
}

// Lookup finds an account by key or alias, case-insensitively.
func (r *Registry) Lookup(alias string) (Account, error) {
	needle := strings.ToLower(strings.TrimSpace(alias))
	for key, acc := range r.accounts {
		if strings.ToLower(key) == needle {
			return acc, nil
		}
		for _, a := range acc.Aliases {
			if strings.ToLower(a) == needle {
				return acc, nil
			}
		}
	}
	return Account{}, eris.Errorf("account: unknown account %q", alias)
}

// Keys returns all account keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.accounts))
	for k := range r.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
