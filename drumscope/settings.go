package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the drumscope configuration file.
type Settings struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	Analysis struct {
		Window       int           `yaml:"window"`        // energy window width in samples
		ReportPeriod time.Duration `yaml:"report_period"` // interval between console reports
	} `yaml:"analysis"`
}

// DefaultSettings returns usable defaults.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.Serial.Port = "/dev/ttyACM0"
	s.Serial.Baud = 115200
	s.Analysis.Window = 32
	s.Analysis.ReportPeriod = time.Second
	return s
}

// LoadSettings loads the settings file. A missing file yields defaults;
// missing fields are filled in from defaults.
func LoadSettings(filename string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	s.ensureDefaults()
	return s, nil
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

func (s *Settings) ensureDefaults() {
	def := DefaultSettings()

	if s.Serial.Port == "" {
		s.Serial.Port = def.Serial.Port
	}
	if s.Serial.Baud == 0 {
		s.Serial.Baud = def.Serial.Baud
	}
	if s.Analysis.Window <= 0 {
		s.Analysis.Window = def.Analysis.Window
	}
	if s.Analysis.ReportPeriod == 0 {
		s.Analysis.ReportPeriod = def.Analysis.ReportPeriod
	}
}
