package mysql

import "github.com/velmie/cadence"

// Tables names the tables used by the store. Use schema.table for a non-default schema.
type Tables struct {
	Leads       string
	Cadences    string
	Campaigns   string
	Enrollments string
	Activities  string
}

// DefaultTables returns the default table names.
func DefaultTables() Tables {
	return Tables{
		Leads:       "leads",
		Cadences:    "cadences",
		Campaigns:   "campaigns",
		Enrollments: "cadence_enrollments",
		Activities:  "cadence_activities",
	}
}

// Config defines MySQL store behavior.
type Config struct {
	Tables Tables
	Logger cadence.Logger
}

func (c Config) withDefaults() Config {
	defaults := DefaultTables()
	if c.Tables.Leads == "" {
		c.Tables.Leads = defaults.Leads
	}
	if c.Tables.Cadences == "" {
		c.Tables.Cadences = defaults.Cadences
	}
	if c.Tables.Campaigns == "" {
		c.Tables.Campaigns = defaults.Campaigns
	}
	if c.Tables.Enrollments == "" {
		c.Tables.Enrollments = defaults.Enrollments
	}
	if c.Tables.Activities == "" {
		c.Tables.Activities = defaults.Activities
	}
	if c.Logger == nil {
		c.Logger = cadence.NopLogger{}
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTables overrides table names. Empty names keep their defaults.
func WithTables(tables Tables) Option {
	return func(c *Config) {
		c.Tables = tables
	}
}

// WithEnrollmentTable sets the enrollment table name.
func WithEnrollmentTable(name string) Option {
	return func(c *Config) {
		c.Tables.Enrollments = name
	}
}

// WithActivityTable sets the activity table name.
func WithActivityTable(name string) Option {
	return func(c *Config) {
		c.Tables.Activities = name
	}
}

// WithLogger sets the store logger.
func WithLogger(logger cadence.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
