package core

// ApprovedTemplates returns the automation's template entries whose review
// landed on approved, in position order. Pending and rejected entries are
// invisible to instantiation.
func ApprovedTemplates(a *Automation) []*TemplateEntry {
	var approved []*TemplateEntry
	for _, t := range a.Templates {
		if t.ApprovalState == ApprovalApproved {
			approved = append(approved, t)
		}
	}
	return approved
}
