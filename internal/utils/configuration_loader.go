package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorConstant         = "_"
	configurationKeySeparatorConstant       = "."
	embeddedConfigurationReadErrorTemplate  = "unable to read embedded configuration: %w"
	configurationFileReadErrorTemplate      = "unable to read configuration file %s: %w"
	configurationSearchReadErrorTemplate    = "unable to read configuration: %w"
	configurationDecodeErrorTemplate        = "unable to decode configuration: %w"
	configurationTargetMissingErrorConstant = "configuration target is required"
)

// LoadedConfiguration describes where the effective configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// ConfigurationLoader layers embedded defaults, a configuration file and environment variables.
type ConfigurationLoader struct {
	configurationName     string
	configurationType     string
	environmentPrefix     string
	searchPaths           []string
	embeddedConfiguration []byte
	embeddedType          string
}

// NewConfigurationLoader constructs a loader searching searchPaths, in order, for name.type.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration registers the configuration compiled into the binary.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(data []byte, configurationType string) {
	loader.embeddedConfiguration = append([]byte(nil), data...)
	loader.embeddedType = configurationType
}

// LoadConfiguration decodes the layered configuration into target. An explicit path must exist;
// a missing file in the search paths is not an error.
func (loader *ConfigurationLoader) LoadConfiguration(explicitPath string, defaults map[string]any, target any) (LoadedConfiguration, error) {
	if target == nil {
		return LoadedConfiguration{}, errors.New(configurationTargetMissingErrorConstant)
	}

	configurationReader := viper.New()
	for key, value := range defaults {
		configurationReader.SetDefault(key, value)
	}

	if len(loader.embeddedConfiguration) > 0 {
		configurationReader.SetConfigType(loader.embeddedType)
		if readError := configurationReader.ReadConfig(bytes.NewReader(loader.embeddedConfiguration)); readError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationReadErrorTemplate, readError)
		}
	}

	trimmedPath := strings.TrimSpace(explicitPath)
	if len(trimmedPath) > 0 {
		configurationReader.SetConfigFile(trimmedPath)
		if mergeError := configurationReader.MergeInConfig(); mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(configurationFileReadErrorTemplate, trimmedPath, mergeError)
		}
	} else {
		configurationReader.SetConfigName(loader.configurationName)
		configurationReader.SetConfigType(loader.configurationType)
		for _, searchPath := range loader.searchPaths {
			if len(strings.TrimSpace(searchPath)) > 0 {
				configurationReader.AddConfigPath(searchPath)
			}
		}
		if mergeError := configurationReader.MergeInConfig(); mergeError != nil {
			var notFoundError viper.ConfigFileNotFoundError
			if !errors.As(mergeError, &notFoundError) {
				return LoadedConfiguration{}, fmt.Errorf(configurationSearchReadErrorTemplate, mergeError)
			}
		}
	}

	if len(loader.environmentPrefix) > 0 {
		configurationReader.SetEnvPrefix(loader.environmentPrefix)
	}
	configurationReader.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	configurationReader.AutomaticEnv()

	decodeError := configurationReader.Unmarshal(target, func(decoderConfiguration *mapstructure.DecoderConfig) {
		decoderConfiguration.WeaklyTypedInput = true
	})
	if decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplate, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: configurationReader.ConfigFileUsed()}, nil
}
