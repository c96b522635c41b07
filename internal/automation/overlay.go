package automation

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// Recipients is the resolved destination of one run.
type Recipients struct {
	To     string
	ToRole domain.Role
	CC     string
	CCRole domain.Role
}

// ResolveRecipients looks up the address for the rule's recipient role and
// optional cc role in the record's related contacts. A missing or invalid
// cc address is dropped rather than failing the run.
func ResolveRecipients(rule domain.AutomationRule, related domain.Related) (Recipients, error) {
	r := Recipients{ToRole: rule.RecipientRole}
	if rule.CCRole != nil {
		r.CCRole = *rule.CCRole
		r.CC = usableAddress(related[r.CCRole])
	}
	r.To = usableAddress(related[rule.RecipientRole])
	if r.To == "" {
		return r, fmt.Errorf("%w for role %s", ErrNoRecipient, rule.RecipientRole)
	}
	if r.CC == r.To {
		r.CC = ""
	}
	return r, nil
}

func usableAddress(c *domain.Contact) string {
	if c == nil {
		return ""
	}
	addr := strings.TrimSpace(c.Email)
	if addr == "" {
		return ""
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return ""
	}
	return parsed.Address
}

// ApplyTestMode redirects every address to the test address configured for
// its role when test mode is enabled or forced. It reports whether the
// overlay was applied. Message content is never touched here.
//
// With the overlay active, a primary role without a test address is an
// error (the real contact is never used); a cc role without one, or a cc
// that never resolved, is dropped.
func ApplyTestMode(settings domain.TestModeSettings, force bool, r Recipients) (Recipients, bool, error) {
	if !settings.Enabled && !force {
		return r, false, nil
	}
	out := Recipients{ToRole: r.ToRole, CCRole: r.CCRole}
	to, ok := settings.AddressFor(r.ToRole)
	if !ok {
		return out, true, fmt.Errorf("%w: test mode has no address for role %s", ErrNoRecipient, r.ToRole)
	}
	out.To = to
	if r.CC != "" {
		if cc, ok := settings.AddressFor(r.CCRole); ok && cc != to {
			out.CC = cc
		}
	}
	return out, true, nil
}
