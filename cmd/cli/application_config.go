package cli

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tyemirov/gitdeploy/internal/deploy"
)

const (
	embeddedConfigurationTypeConstant          = "yaml"
	configurationDocumentParseErrorTemplate    = "embedded configuration is not valid YAML: %w"
	configurationDocumentMissingSectionMessage = "embedded configuration is missing the deploy section"
)

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Deploy deploy.CommandConfiguration    `mapstructure:"deploy"`
}

// ApplicationCommonConfiguration stores logging options shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// EmbeddedDefaultConfiguration returns a copy of the embedded default configuration and its type.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	duplicated := make([]byte, len(embeddedDefaultConfiguration))
	copy(duplicated, embeddedDefaultConfiguration)
	return duplicated, embeddedConfigurationTypeConstant
}

type configurationDocument struct {
	Common map[string]any `yaml:"common"`
	Deploy *struct {
		SourceRepository string           `yaml:"source_repository"`
		Targets          []map[string]any `yaml:"targets"`
	} `yaml:"deploy"`
}

func validateConfigurationDocument(content []byte) error {
	var document configurationDocument
	if decodeError := yaml.Unmarshal(content, &document); decodeError != nil {
		return fmt.Errorf(configurationDocumentParseErrorTemplate, decodeError)
	}
	if document.Deploy == nil {
		return errors.New(configurationDocumentMissingSectionMessage)
	}
	return nil
}
