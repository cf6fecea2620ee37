package mysql

import "fmt"

const enrollmentCols = "id, lead_id, cadence_id, campaign_id, current_step_index, current_day, status, " +
	"next_activity_at, next_activity_channel, next_activity_type, started_at, completed_at, updated_at, " +
	"attempts, last_error, claimed_until"

type queries struct {
	findLead          string
	findCadence       string
	findActiveByLead  string
	findEnrollment    string
	lockEnrollment    string
	insertEnrollment  string
	updateEnrollment  string
	selectDue         string
	claimDue          string
	claim             string
	recordFailure     string
	countDue          string
	insertActivity    string
	setLeadStatus     string
	incrementUsage    string
	incrementCampaign string
	upsertLead        string
	upsertCadence     string
}

func newQueries(t Tables) queries {
	return queries{
		findLead: fmt.Sprintf(
			"SELECT id, name, company, status, email, phone, whatsapp, linkedin_url, instagram_handle FROM %s WHERE id = ?",
			t.Leads,
		),
		findCadence:      fmt.Sprintf("SELECT id, name, steps, usage_count FROM %s WHERE id = ?", t.Cadences),
		findActiveByLead: fmt.Sprintf("SELECT %s FROM %s WHERE lead_id = ? AND status = ? LIMIT 1", enrollmentCols, t.Enrollments),
		findEnrollment:   fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", enrollmentCols, t.Enrollments),
		lockEnrollment:   fmt.Sprintf("SELECT %s FROM %s WHERE id = ? FOR UPDATE", enrollmentCols, t.Enrollments),
		insertEnrollment: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.Enrollments,
			enrollmentCols,
		),
		updateEnrollment: fmt.Sprintf(
			"UPDATE %s SET current_step_index = ?, current_day = ?, status = ?, next_activity_at = ?, "+
				"next_activity_channel = ?, next_activity_type = ?, completed_at = ?, updated_at = ?, "+
				"attempts = 0, last_error = NULL, claimed_until = NULL "+
				"WHERE id = ? AND status = ? AND current_step_index = ?",
			t.Enrollments,
		),
		selectDue: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? AND next_activity_at <= ? ORDER BY next_activity_at ASC, id ASC LIMIT ?",
			enrollmentCols,
			t.Enrollments,
		),
		claimDue: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? AND next_activity_at <= ? AND (claimed_until IS NULL OR claimed_until <= ?) "+
				"ORDER BY next_activity_at ASC, id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
			enrollmentCols,
			t.Enrollments,
		),
		claim: fmt.Sprintf("UPDATE %s SET claimed_until = ? WHERE id IN ", t.Enrollments),
		recordFailure: fmt.Sprintf(
			"UPDATE %s SET attempts = ?, last_error = ?, claimed_until = NULL, updated_at = ?, "+
				"next_activity_at = COALESCE(?, next_activity_at), "+
				"status = CASE WHEN status = ? THEN ? ELSE status END WHERE id = ?",
			t.Enrollments,
		),
		countDue: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ? AND next_activity_at <= ?", t.Enrollments),
		insertActivity: fmt.Sprintf(
			"INSERT INTO %s (id, lead_id, campaign_id, enrollment_id, type, channel, direction, content, status, "+
				"metadata, scheduled_at, performed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.Activities,
		),
		setLeadStatus:  fmt.Sprintf("UPDATE %s SET status = ? WHERE id = ?", t.Leads),
		incrementUsage: fmt.Sprintf("UPDATE %s SET usage_count = usage_count + 1 WHERE id = ?", t.Cadences),
		incrementCampaign: fmt.Sprintf(
			"INSERT INTO %s (id, lead_count) VALUES (?, 1) ON DUPLICATE KEY UPDATE lead_count = lead_count + 1",
			t.Campaigns,
		),
		upsertLead: fmt.Sprintf(
			"INSERT INTO %s (id, name, company, status, email, phone, whatsapp, linkedin_url, instagram_handle) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) AS new ON DUPLICATE KEY UPDATE name = new.name, company = new.company, "+
				"email = new.email, phone = new.phone, whatsapp = new.whatsapp, linkedin_url = new.linkedin_url, "+
				"instagram_handle = new.instagram_handle",
			t.Leads,
		),
		upsertCadence: fmt.Sprintf(
			"INSERT INTO %s (id, name, steps) VALUES (?, ?, ?) AS new ON DUPLICATE KEY UPDATE name = new.name, steps = new.steps",
			t.Cadences,
		),
	}
}
