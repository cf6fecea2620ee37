package mysql

import "testing"

func TestSanitizeTableName(t *testing.T) {
	valid := []string{"cadence_enrollments", "crm.leads", "LEADS_1"}
	for _, name := range valid {
		if _, err := sanitizeTableName(name); err != nil {
			t.Fatalf("expected valid name %q: %v", name, err)
		}
	}

	invalid := []string{"", "leads;drop", "leads-1", "crm..leads", "crm.leads;"}
	for _, name := range invalid {
		if _, err := sanitizeTableName(name); err == nil {
			t.Fatalf("expected invalid name %q", name)
		}
	}
}

func TestTablesSanitize(t *testing.T) {
	tables := DefaultTables()
	tables.Leads = "crm.leads"
	if _, err := tables.sanitize(); err != nil {
		t.Fatalf("sanitize: %v", err)
	}

	tables.Activities = "bad name"
	if _, err := tables.sanitize(); err == nil {
		t.Fatalf("expected invalid activities table")
	}
}

func TestActiveLeadIndex(t *testing.T) {
	if got := activeLeadIndex("crm.cadence_enrollments"); got != "uq_cadence_enrollments_active_lead" {
		t.Fatalf("unexpected index name %s", got)
	}
}
