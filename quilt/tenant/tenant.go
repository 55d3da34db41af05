package tenant

import "strings"

// Config identifies the privileged tenant. Membership is derived from the
// principal's email domain or the profile's company field, never stored.
type Config struct {
	Domain  string `yaml:"domain"`
	Company string `yaml:"company"`
}

// DefaultConfig matches the MKY Global Forwarding tenant.
func DefaultConfig() Config {
	return Config{Domain: "mky.com", Company: "MKY"}
}

type Info struct {
	IsPrivileged bool
	Domain       string
	Company      string
}

// Resolve recomputes tenant membership from the current principal email and
// profile company. It is a pure function of its inputs; callers must not
// cache the result beyond the profile snapshot it was derived from.
func Resolve(cfg Config, email string, company *string) Info {
	info := Info{}

	if at := strings.LastIndex(email, "@"); at >= 0 {
		info.Domain = email[at+1:]
	}
	if company != nil {
		info.Company = *company
	}

	info.IsPrivileged = (info.Domain != "" && info.Domain == cfg.Domain) ||
		(info.Company != "" && info.Company == cfg.Company)

	return info
}
