package mysql

import (
	"strings"
	"testing"
)

func TestSchemaDefaults(t *testing.T) {
	schema, err := Schema(Tables{})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS leads",
		"CREATE TABLE IF NOT EXISTS cadences",
		"CREATE TABLE IF NOT EXISTS campaigns",
		"CREATE TABLE IF NOT EXISTS cadence_enrollments",
		"CREATE TABLE IF NOT EXISTS cadence_activities",
		"UNIQUE KEY uq_cadence_enrollments_active_lead (active_lead_id)",
		"steps JSON NOT NULL",
		"metadata JSON NULL",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("expected schema to contain %q", want)
		}
	}
}

func TestSchemaStatementsCustomTables(t *testing.T) {
	statements, err := SchemaStatements(Tables{Enrollments: "crm.enrollments"})
	if err != nil {
		t.Fatalf("schema statements: %v", err)
	}
	if len(statements) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(statements))
	}
	if !strings.Contains(statements[3], "CREATE TABLE IF NOT EXISTS crm.enrollments") {
		t.Fatalf("expected custom enrollment table")
	}
	if !strings.Contains(statements[3], "uq_enrollments_active_lead") {
		t.Fatalf("expected index named after the table")
	}
}

func TestSchemaInvalidTable(t *testing.T) {
	if _, err := Schema(Tables{Leads: "leads;drop"}); err == nil {
		t.Fatalf("expected invalid table error")
	}
}
