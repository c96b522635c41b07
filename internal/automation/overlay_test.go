package automation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

func related() domain.Related {
	return domain.Related{
		domain.RoleBorrower:   {Email: " Dana Reyes <dana@example.com> "},
		domain.RoleBuyerAgent: {Email: "sam@agency.com"},
		domain.RoleLender:     {Email: "not-an-address"},
	}
}

func TestResolveRecipients(t *testing.T) {
	rule := ctcRule("a1")
	r, err := automation.ResolveRecipients(rule, related())
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", r.To)
	assert.Equal(t, "sam@agency.com", r.CC)
	assert.Equal(t, domain.RoleBuyerAgent, r.CCRole)
}

func TestResolveRecipientsInvalidCCDropped(t *testing.T) {
	rule := ctcRule("a1")
	rule.CCRole = rolePtr(domain.RoleLender)
	r, err := automation.ResolveRecipients(rule, related())
	require.NoError(t, err)
	assert.Empty(t, r.CC)
}

func TestResolveRecipientsSameAddressDropsCC(t *testing.T) {
	rule := ctcRule("a1")
	rel := domain.Related{
		domain.RoleBorrower:   {Email: "same@example.com"},
		domain.RoleBuyerAgent: {Email: "same@example.com"},
	}
	r, err := automation.ResolveRecipients(rule, rel)
	require.NoError(t, err)
	assert.Empty(t, r.CC)
}

func TestResolveRecipientsMissing(t *testing.T) {
	rule := ctcRule("a1")
	rule.RecipientRole = domain.RoleLender
	_, err := automation.ResolveRecipients(rule, related())
	assert.ErrorIs(t, err, automation.ErrNoRecipient)

	rule.RecipientRole = domain.RoleTeamMember
	_, err = automation.ResolveRecipients(rule, related())
	assert.ErrorIs(t, err, automation.ErrNoRecipient)
}

func TestApplyTestMode(t *testing.T) {
	actual := automation.Recipients{To: "dana@example.com", ToRole: domain.RoleBorrower, CC: "sam@agency.com", CCRole: domain.RoleBuyerAgent}
	settings := domain.TestModeSettings{Enabled: true, Addresses: map[domain.Role]string{
		domain.RoleBorrower:   "qa+b@example.com",
		domain.RoleBuyerAgent: "qa+a@example.com",
	}}

	out, applied, err := automation.ApplyTestMode(settings, false, actual)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "qa+b@example.com", out.To)
	assert.Equal(t, "qa+a@example.com", out.CC)

	off := settings
	off.Enabled = false
	out, applied, err = automation.ApplyTestMode(off, false, actual)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, actual, out)

	out, applied, err = automation.ApplyTestMode(off, true, actual)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "qa+b@example.com", out.To)
}

func TestApplyTestModeMissingAddresses(t *testing.T) {
	actual := automation.Recipients{To: "dana@example.com", ToRole: domain.RoleBorrower, CC: "sam@agency.com", CCRole: domain.RoleBuyerAgent}

	onlyCC := domain.TestModeSettings{Enabled: true, Addresses: map[domain.Role]string{domain.RoleBuyerAgent: "qa@example.com"}}
	_, applied, err := automation.ApplyTestMode(onlyCC, false, actual)
	assert.True(t, applied)
	assert.ErrorIs(t, err, automation.ErrNoRecipient)

	onlyTo := domain.TestModeSettings{Enabled: true, Addresses: map[domain.Role]string{domain.RoleBorrower: "qa@example.com"}}
	out, _, err := automation.ApplyTestMode(onlyTo, false, actual)
	require.NoError(t, err)
	assert.Equal(t, "qa@example.com", out.To)
	assert.Empty(t, out.CC)
}

func TestApplyTestModeUnresolvedCCStaysDropped(t *testing.T) {
	// The cc role is set on the rule but resolution found no usable address.
	actual := automation.Recipients{To: "dana@example.com", ToRole: domain.RoleBorrower, CCRole: domain.RoleBuyerAgent}
	settings := domain.TestModeSettings{Enabled: true, Addresses: map[domain.Role]string{
		domain.RoleBorrower:   "qa+b@example.com",
		domain.RoleBuyerAgent: "qa+a@example.com",
	}}

	out, applied, err := automation.ApplyTestMode(settings, false, actual)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "qa+b@example.com", out.To)
	assert.Empty(t, out.CC)
}
