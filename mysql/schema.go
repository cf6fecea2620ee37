package mysql

import (
	"fmt"
	"strings"
)

const leadsTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) NOT NULL,
	name VARCHAR(255) NOT NULL,
	company VARCHAR(255) NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'new',
	email VARCHAR(255) NULL,
	phone VARCHAR(64) NULL,
	whatsapp VARCHAR(64) NULL,
	linkedin_url VARCHAR(512) NULL,
	instagram_handle VARCHAR(128) NULL,
	updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
);`

const cadencesTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) NOT NULL,
	name VARCHAR(255) NOT NULL,
	steps JSON NOT NULL,
	usage_count INT NOT NULL DEFAULT 0,
	updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
);`

const campaignsTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) NOT NULL,
	lead_count INT NOT NULL DEFAULT 0,
	PRIMARY KEY (id)
);`

const enrollmentsTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) NOT NULL,
	lead_id VARCHAR(64) NOT NULL,
	cadence_id VARCHAR(64) NOT NULL,
	campaign_id VARCHAR(64) NULL,
	current_step_index INT NOT NULL DEFAULT 0,
	current_day INT NOT NULL DEFAULT 0,
	status VARCHAR(16) NOT NULL,
	next_activity_at DATETIME(6) NULL,
	next_activity_channel VARCHAR(32) NULL,
	next_activity_type VARCHAR(32) NULL,
	started_at DATETIME(6) NOT NULL,
	completed_at DATETIME(6) NULL,
	updated_at DATETIME(6) NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	claimed_until DATETIME(6) NULL,
	active_lead_id VARCHAR(64) GENERATED ALWAYS AS (CASE WHEN status = 'active' THEN lead_id END) STORED,
	PRIMARY KEY (id),
	UNIQUE KEY %s (active_lead_id),
	INDEX idx_status_next_activity (status, next_activity_at),
	INDEX idx_lead (lead_id)
);`

const activitiesTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) NOT NULL,
	lead_id VARCHAR(64) NOT NULL,
	campaign_id VARCHAR(64) NULL,
	enrollment_id VARCHAR(64) NULL,
	type VARCHAR(32) NOT NULL,
	channel VARCHAR(32) NULL,
	direction VARCHAR(16) NOT NULL,
	content TEXT NULL,
	status VARCHAR(16) NOT NULL,
	metadata JSON NULL,
	scheduled_at DATETIME(6) NULL,
	performed_at DATETIME(6) NOT NULL,
	PRIMARY KEY (id),
	INDEX idx_enrollment (enrollment_id),
	INDEX idx_lead_performed (lead_id, performed_at)
);`

// SchemaStatements returns one CREATE TABLE statement per table.
// Lead, cadence and campaign tables are normally owned by other services, their DDL
// documents the columns the store reads and writes.
func SchemaStatements(tables Tables) ([]string, error) {
	tables = Config{Tables: tables}.withDefaults().Tables
	tables, err := tables.sanitize()
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf(leadsTemplate, tables.Leads),
		fmt.Sprintf(cadencesTemplate, tables.Cadences),
		fmt.Sprintf(campaignsTemplate, tables.Campaigns),
		fmt.Sprintf(enrollmentsTemplate, tables.Enrollments, activeLeadIndex(tables.Enrollments)),
		fmt.Sprintf(activitiesTemplate, tables.Activities),
	}, nil
}

// Schema returns the full DDL as a single script.
func Schema(tables Tables) (string, error) {
	statements, err := SchemaStatements(tables)
	if err != nil {
		return "", err
	}

	return strings.Join(statements, "\n\n"), nil
}
