package mysql

import (
	"fmt"
	"strings"
)

func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

// sanitize validates every table name in place.
func (t Tables) sanitize() (Tables, error) {
	names := []*string{&t.Leads, &t.Cadences, &t.Campaigns, &t.Enrollments, &t.Activities}
	for _, name := range names {
		clean, err := sanitizeTableName(*name)
		if err != nil {
			return Tables{}, err
		}
		*name = clean
	}

	return t, nil
}

// activeLeadIndex derives the active lead index name, which is matched in duplicate key errors.
func activeLeadIndex(enrollments string) string {
	if i := strings.LastIndexByte(enrollments, '.'); i >= 0 {
		enrollments = enrollments[i+1:]
	}

	return "uq_" + enrollments + "_active_lead"
}
