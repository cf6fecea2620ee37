package config

import (
	"errors"
	"fmt"

	"github.com/velmie/cadence"
)

// SeedConfig holds leads, cadences and campaigns loaded into the store by the seed command
// and at start-up of the memory store.
type SeedConfig struct {
	Campaigns []string      `yaml:"campaigns"`
	Leads     []SeedLead    `yaml:"leads"`
	Cadences  []SeedCadence `yaml:"cadences"`
}

type SeedLead struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Company   string `yaml:"company"`
	Status    string `yaml:"status"`
	Email     string `yaml:"email"`
	Phone     string `yaml:"phone"`
	WhatsApp  string `yaml:"whatsapp"`
	LinkedIn  string `yaml:"linkedin"`
	Instagram string `yaml:"instagram"`
}

type SeedCadence struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Steps []SeedStep `yaml:"steps"`
}

type SeedStep struct {
	Day        int    `yaml:"day"`
	Time       string `yaml:"time"`
	Channel    string `yaml:"channel"`
	Action     string `yaml:"action"`
	Content    string `yaml:"content"`
	TemplateID string `yaml:"template_id"`
}

// Empty reports whether the section defines nothing.
func (s SeedConfig) Empty() bool {
	return len(s.Campaigns) == 0 && len(s.Leads) == 0 && len(s.Cadences) == 0
}

func (l SeedLead) Lead() cadence.Lead {
	return cadence.Lead{
		ID:              l.ID,
		Name:            l.Name,
		Company:         l.Company,
		Status:          l.Status,
		Email:           l.Email,
		Phone:           l.Phone,
		WhatsApp:        l.WhatsApp,
		LinkedInURL:     l.LinkedIn,
		InstagramHandle: l.Instagram,
	}
}

func (c SeedCadence) Cadence() cadence.Cadence {
	steps := make([]cadence.Step, 0, len(c.Steps))
	for _, s := range c.Steps {
		steps = append(steps, cadence.Step{
			Day:        s.Day,
			Time:       s.Time,
			Channel:    cadence.Channel(s.Channel),
			Action:     cadence.Action(s.Action),
			Content:    s.Content,
			TemplateID: s.TemplateID,
		})
	}

	return cadence.Cadence{ID: c.ID, Name: c.Name, Steps: steps}
}

func (s SeedConfig) validate() error {
	var errs []error
	for i, l := range s.Leads {
		if l.ID == "" {
			errs = append(errs, fmt.Errorf("config: seed.leads[%d].id is required", i))
		}
	}
	for i, c := range s.Cadences {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("config: seed.cadences[%d].id is required", i))
			continue
		}
		if err := c.Cadence().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: seed.cadences[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
