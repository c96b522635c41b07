package mailing

import (
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// RenderContext is the data structure exposed to Liquid templates
type RenderContext map[string]interface{}

// BuildMergeContext flattens a record and its related contacts into merge
// tags. Record fields are top-level ({{ loan_amount }}) and also nested
// under "record". Each contact is available both as a map
// ({{ borrower.first_name }}) and flattened ({{ borrower_first_name }}).
func BuildMergeContext(rec *domain.Record, related domain.Related, now time.Time) RenderContext {
	rc := make(RenderContext)
	recordMap := make(map[string]interface{})

	if rec != nil {
		for k, v := range rec.Fields {
			rc[k] = v
			recordMap[k] = v
		}
		rc["record_id"] = rec.ID
		rc["stage_id"] = rec.StageID
		recordMap["id"] = rec.ID
		recordMap["stage_id"] = rec.StageID
	}
	rc["record"] = recordMap

	for _, role := range domain.Roles {
		c := related[role]
		if c == nil {
			continue
		}
		prefix := string(role)
		m := contactMap(c)
		rc[prefix] = m
		for k, v := range m {
			rc[prefix+"_"+k] = v
		}
	}

	// agent_name prefers the buyer's agent
	for _, role := range []domain.Role{domain.RoleBuyerAgent, domain.RoleListingAgent} {
		if c := related[role]; c != nil {
			rc["agent_name"] = c.FullName()
			break
		}
	}

	rc["today"] = now.Format("January 2, 2006")
	return rc
}

func contactMap(c *domain.Contact) map[string]interface{} {
	return map[string]interface{}{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"name":       c.FullName(),
		"email":      c.Email,
		"phone":      c.Phone,
		"company":    c.Company,
	}
}
